// Package echo provides a provider that answers in-process without calling
// any external API. It backs local development when no OpenAI key is
// configured and gives tests a deterministic upstream.
package echo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minbak/hearth/internal/domain"
	"github.com/minbak/hearth/internal/observability"
)

const providerName = "echo"

// A valid 1x1 transparent PNG, returned by GenerateImage.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAA" +
	"C0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// Provider implements the domain.Provider interface without upstream calls.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider.
func NewProvider() *Provider {
	return &Provider{name: providerName}
}

// Complete echoes the final user turn back as the assistant reply.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	content := ""
	if len(req.Turns) > 0 {
		last := req.Turns[len(req.Turns)-1]
		content = fmt.Sprintf("[%s]: %s", last.Role, last.Text())
	}

	promptTokens := 0
	for _, turn := range req.Turns {
		promptTokens += countTokens(turn.Text())
	}
	completionTokens := countTokens(content)

	return &domain.CompletionResponse{
		ID:      fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:   req.Model,
		Content: content,
		Usage: &domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// GenerateImage returns a fixed one-pixel PNG.
func (p *Provider) GenerateImage(_ context.Context, req *domain.ImageGenerationRequest) (*domain.ImageData, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	raw, err := base64.StdEncoding.DecodeString(onePixelPNG)
	if err != nil {
		return nil, fmt.Errorf("decode placeholder image: %w", err)
	}
	return &domain.ImageData{Bytes: raw, Ext: ".png"}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
