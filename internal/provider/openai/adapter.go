// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Provider interface and handles conversion
// between domain turns and SDK message parameters, including multimodal
// content parts and image generation.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/minbak/hearth/internal/domain"
	"github.com/minbak/hearth/internal/observability"
)

const providerName = "openai"

const imageFetchTimeout = 60 * time.Second

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		name:   providerName,
	}, nil
}

// Complete submits an assembled turn sequence and returns the first choice's
// content. The model identifier is passed upstream exactly as selected;
// unrecognized identifiers surface as upstream errors.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI chat completions")

	resp, err := p.client.Chat.Completions.New(ctx, toSDKParams(req), perRequestOptions(req.APIKey)...)
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	out := &domain.CompletionResponse{
		ID:      resp.ID,
		Model:   string(resp.Model),
		Content: content,
	}
	if resp.JSON.Usage.Valid() {
		out.Usage = &domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
		logger.Debug("OpenAI API call succeeded",
			observability.Int("prompt_tokens", out.Usage.PromptTokens),
			observability.Int("completion_tokens", out.Usage.CompletionTokens),
		)
	}

	return out, nil
}

// GenerateImage renders one image from a prompt and returns its raw bytes.
func (p *Provider) GenerateImage(ctx context.Context, req *domain.ImageGenerationRequest) (*domain.ImageData, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI image generation")

	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(req.Model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}, perRequestOptions(req.APIKey)...)
	if err != nil {
		logger.Error("OpenAI image generation failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI image generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("OpenAI returned no image data")
	}

	img := resp.Data[0]
	if img.B64JSON != "" {
		raw, decodeErr := base64.StdEncoding.DecodeString(img.B64JSON)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode image payload: %w", decodeErr)
		}
		return &domain.ImageData{Bytes: raw, Ext: ".png"}, nil
	}

	// Some models only return a hosted URL; fetch the bytes from it.
	if img.URL != "" {
		raw, fetchErr := fetchImage(ctx, img.URL)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return &domain.ImageData{Bytes: raw, Ext: ".png"}, nil
	}

	return nil, errors.New("OpenAI image response had neither payload nor URL")
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// perRequestOptions applies a per-user API key override when present.
func perRequestOptions(apiKey string) []option.RequestOption {
	if apiKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(apiKey)}
}

// toSDKParams converts domain turns to SDK ChatCompletionNewParams. Turns
// with an image part become multimodal user messages.
func toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Turns))
	for i, turn := range req.Turns {
		messages[i] = toSDKMessage(turn)
	}

	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
}

func toSDKMessage(turn domain.Turn) openai.ChatCompletionMessageParamUnion {
	switch turn.Role {
	case domain.RoleSystem:
		return openai.SystemMessage(turn.Text())
	case domain.RoleAssistant:
		return openai.AssistantMessage(turn.Text())
	default:
		if ref := turn.ImageRef(); ref != "" {
			return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(turn.Text()),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: ref,
				}),
			})
		}
		return openai.UserMessage(turn.Text())
	}
}

func fetchImage(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image fetch request: %w", err)
	}

	client := &http.Client{Timeout: imageFetchTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch generated image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch generated image: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	return raw, nil
}
