// Package extract turns a PDF into table candidates and per-page text.
package extract

import (
	"context"
	"errors"
	"log/slog"

	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
)

var ErrNoBackend = errors.New("no extraction backend configured")

// Extractor reads one document. Segments carry page numbers only; the caller
// stamps document and fund ids.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]tables.TableCandidate, []text.Segment, error)
	Name() string
}

type Output struct {
	Tables   []tables.TableCandidate
	Segments []text.Segment
	Engine   string
}

// Chain runs the structure-aware backend first and falls back to the
// geometry backend when it fails or finds no tables.
type Chain struct {
	primary  Extractor
	fallback Extractor
}

// NewChain accepts a nil primary when the structure-aware backend is disabled.
func NewChain(primary, fallback Extractor) *Chain {
	return &Chain{primary: primary, fallback: fallback}
}

func (c *Chain) Extract(ctx context.Context, path string) (Output, error) {
	var out Output
	if c.primary != nil {
		t, segs, err := c.primary.Extract(ctx, path)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "primary extraction failed, falling back", "engine", c.primary.Name(), "error", err)
		case len(t) == 0:
			slog.InfoContext(ctx, "primary extraction found no tables, falling back", "engine", c.primary.Name())
			out.Segments = segs
		default:
			slog.InfoContext(ctx, "extracted table candidates", "engine", c.primary.Name(), "tables", len(t))
			return Output{Tables: t, Segments: segs, Engine: c.primary.Name()}, nil
		}
	}

	if c.fallback == nil {
		return Output{}, ErrNoBackend
	}
	t, segs, err := c.fallback.Extract(ctx, path)
	if err != nil {
		return Output{}, err
	}
	if len(out.Segments) == 0 {
		out.Segments = segs
	}
	out.Tables = t
	out.Engine = c.fallback.Name()
	slog.InfoContext(ctx, "extracted table candidates", "engine", out.Engine, "tables", len(t))
	return out, nil
}
