package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "text-embedding-004"

type Embedder struct {
	client *genai.Client
	model  string
	dim    int
}

func NewEmbedder(ctx context.Context, apiKey, model string, dim int, opts ...option.ClientOption) (*Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, dim: dim}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Dimensions() int { return e.dim }

func (e *Embedder) Name() string { return "gemini/" + e.model }

func (e *Embedder) Close() error {
	return e.client.Close()
}
