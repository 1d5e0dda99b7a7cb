package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4000

// Anthropic implements TextGenerator with Claude models. It has no
// embeddings endpoint; pair it with another Embedder.
type Anthropic struct {
	client anthropic.Client
	logger *slog.Logger
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(apiKey string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	client := anthropic.NewClient(
		append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...,
	)

	return &Anthropic{
		client: client,
		logger: slog.With("component", "llm", "provider", "anthropic"),
	}, nil
}

func (a *Anthropic) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("claude returned no text")
	}

	a.logger.Debug("message received", "model", model, "stop_reason", resp.StopReason)
	return sb.String(), nil
}
