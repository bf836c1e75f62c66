package domain

import "fmt"

// defaultVisionPrompt accompanies an image when the caller supplied no text.
const defaultVisionPrompt = "Describe this image."

// NewInput is the fresh user turn of a chat request.
type NewInput struct {
	Text     string
	ImageRef string // data URI or URL, empty when no image accompanies the text
}

// defaultSystemTurn states the active model so the assistant can self-report
// which model it is running as.
func defaultSystemTurn(model string) string {
	return fmt.Sprintf(
		"You are a helpful assistant. You are currently using the model: %s. "+
			"If asked about your model version, please answer that you are %s.",
		model, model,
	)
}

// AssembleTurns builds the exact ordered payload submitted upstream: a
// synthesized system turn, each stored message verbatim in creation order,
// and the new user turn last. The result is never persisted.
//
// The system turn carries the caller's persona instruction when non-empty,
// otherwise the default self-reporting instruction. The final turn is always
// emitted, even when the input has neither text nor image.
func AssembleTurns(history []Message, model, persona string, input NewInput) []Turn {
	turns := make([]Turn, 0, len(history)+2)

	system := persona
	if system == "" {
		system = defaultSystemTurn(model)
	}
	turns = append(turns, TextTurn(RoleSystem, system))

	for _, msg := range history {
		if msg.Role == RoleSystem {
			continue
		}
		turns = append(turns, TextTurn(msg.Role, msg.Content))
	}

	return append(turns, newUserTurn(input))
}

func newUserTurn(input NewInput) Turn {
	if input.ImageRef == "" {
		return TextTurn(RoleUser, input.Text)
	}

	text := input.Text
	if text == "" {
		text = defaultVisionPrompt
	}

	return Turn{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: ContentPartText, Data: text},
			{Type: ContentPartImage, Data: input.ImageRef},
		},
	}
}
