package domain

import "strings"

// ModelClass selects which dispatch branch handles a request.
type ModelClass int

const (
	// ModelTextChat covers text and vision chat models, including any
	// identifier this service does not recognize: those are passed upstream
	// as-is and surface only as an upstream error.
	ModelTextChat ModelClass = iota

	// ModelImageGeneration covers image-generation models.
	ModelImageGeneration

	// ModelVideoStub covers video model families, answered with a fixed
	// placeholder and no upstream call.
	ModelVideoStub
)

// ClassifyModel resolves a model identifier to its dispatch class. Resolution
// happens once per request; the result drives branch selection.
func ClassifyModel(model string) ModelClass {
	switch {
	case strings.HasPrefix(model, "dall-e"), strings.HasPrefix(model, "gpt-image"):
		return ModelImageGeneration
	case strings.HasPrefix(model, "sora"):
		return ModelVideoStub
	default:
		return ModelTextChat
	}
}

func (c ModelClass) String() string {
	switch c {
	case ModelImageGeneration:
		return "image_generation"
	case ModelVideoStub:
		return "video_stub"
	default:
		return "text_chat"
	}
}
