// Package llm adapts hosted model APIs to the text generation and embedding
// calls an agent runtime makes.
package llm

import (
	"context"
	"fmt"

	"github.com/bnv-me/webbnv/internal/config"
)

// TextGenerator completes a single prompt with the named model.
type TextGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewTextGenerator builds the generator selected by LLM_PROVIDER.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	case "anthropic":
		return NewAnthropic(cfg.AnthropicKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the embedder selected by LLM_EMBEDDER.
func NewEmbedder(cfg config.LLMConfig) (Embedder, error) {
	switch cfg.Embedder {
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	case "hash":
		return NewHashEmbedder(DefaultHashDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}
