// Package openai adapts the official OpenAI Go client to skill.LLMBackend,
// demonstrating that the engine's backend is swappable without touching
// pkg/skill itself.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = openai.ChatModelGPT4o

// Backend implements skill.LLMBackend over the Chat Completions API.
type Backend struct {
	client openai.Client
	model  string
}

// New constructs a Backend using apiKey and the package's default model.
func New(apiKey string) *Backend {
	return &Backend{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
}

// WithModel returns a copy of b that defaults to model.
func (b *Backend) WithModel(model string) *Backend {
	clone := *b
	clone.model = model
	return &clone
}

// Chat sends a single system/user exchange and returns the response text.
func (b *Backend) Chat(ctx context.Context, systemPrompt, userMessage string, model *string) (string, error) {
	m := b.model
	if model != nil && *model != "" {
		m = *model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userMessage))

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    m,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
