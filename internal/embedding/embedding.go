// Package embedding selects and wraps the text embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/gemini"
	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/ollama"
	"github.com/akbarharyadi/coding-test-3rd/internal/config"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Provider turns text into a fixed-width vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// New builds the provider resolved from cfg, rate limited when it is remote.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.ResolvedProvider() {
	case config.ProviderGemini:
		p, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel, cfg.GeminiEmbedDimension)
		if err != nil {
			return nil, fmt.Errorf("create gemini embedder: %w", err)
		}
		return NewLimited(p, cfg.EmbedRequestsPerSecond, cfg.EmbedBurst), nil
	case config.ProviderOllama:
		p := ollama.NewEmbedder(cfg.OllamaBaseURL, cfg.OllamaEmbedModel, cfg.OllamaEmbedDimension)
		return NewLimited(p, cfg.EmbedRequestsPerSecond, cfg.EmbedBurst), nil
	default:
		return NewHashProvider(cfg.LocalEmbedDimension), nil
	}
}

// Limited throttles a provider with a token bucket and checks that every
// vector has the declared width.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited wraps p. A non-positive rps disables throttling.
func NewLimited(p Provider, rps float64, burst int) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{Provider: p, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	vec, err := l.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != l.Dimensions() {
		return nil, fmt.Errorf("%w: %s returned %d, want %d", ErrDimensionMismatch, l.Name(), len(vec), l.Dimensions())
	}
	return vec, nil
}
