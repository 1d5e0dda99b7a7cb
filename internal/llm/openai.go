package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements TextGenerator and Embedder against the OpenAI API or
// any server compatible with it.
type OpenAI struct {
	client         *openai.Client
	embeddingModel string
	logger         *slog.Logger
}

// NewOpenAI creates an OpenAI client. baseURL may be empty for the public API.
func NewOpenAI(apiKey, baseURL, embeddingModel string, opts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(append(reqOpts, opts...)...)

	return &OpenAI{
		client:         &client,
		embeddingModel: embeddingModel,
		logger:         slog.With("component", "llm", "provider", "openai"),
	}, nil
}

func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	o.logger.Debug("completion received", "model", model, "finish_reason", completion.Choices[0].FinishReason)
	return completion.Choices[0].Message.Content, nil
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.embeddingModel == "" {
		return nil, errors.New("embedding model is not configured")
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}
