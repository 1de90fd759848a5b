// Package anthropic adapts the Anthropic SDK to skill.LLMBackend. It is a
// thin demo wiring, kept outside the core packages so the engine never
// imports a concrete provider.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultModel = anthropic.Model("claude-sonnet-4-20250514")

// Backend implements skill.LLMBackend over the Anthropic Messages API.
type Backend struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New constructs a Backend using apiKey and the package's default model.
func New(apiKey string) *Backend {
	return &Backend{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     defaultModel,
		maxTokens: 4096,
	}
}

// WithModel returns a copy of b that defaults to model.
func (b *Backend) WithModel(model string) *Backend {
	clone := *b
	clone.model = anthropic.Model(model)
	return &clone
}

// Chat sends a single system/user exchange and returns the response text.
func (b *Backend) Chat(ctx context.Context, systemPrompt, userMessage string, model *string) (string, error) {
	m := b.model
	if model != nil && *model != "" {
		m = anthropic.Model(*model)
	}

	params := anthropic.MessageNewParams{
		Model:     m,
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}

	var out string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			out += block.AsText().Text
		}
	}
	return out, nil
}
