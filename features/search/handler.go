package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/akbarharyadi/coding-test-3rd/internal/index"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/retrieval"
)

const (
	defaultK = 5
	maxK     = 50
)

type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
	Stats(ctx context.Context) (retrieval.Stats, error)
	RebuildIndex(ctx context.Context, fundID *int64) (int, error)
}

type Handler struct {
	svc Searcher
}

func NewHandler(svc Searcher) *Handler {
	return &Handler{svc: svc}
}

type searchRequest struct {
	Query          string `json:"query"`
	K              int    `json:"k"`
	FundID         *int64 `json:"fund_id"`
	DocumentID     *int64 `json:"document_id"`
	Backend        string `json:"backend"`
	IncludeContent *bool  `json:"include_content"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}
	if req.K == 0 {
		req.K = defaultK
	}
	if req.K < 0 || req.K > maxK {
		h.writeError(ctx, w, "VALIDATION_ERROR", "k must be between 1 and 50", http.StatusBadRequest)
		return
	}
	backend, err := retrieval.ParseBackend(req.Backend)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	opts := retrieval.Options{
		K:              req.K,
		FundID:         req.FundID,
		DocumentID:     req.DocumentID,
		Backend:        backend,
		IncludeContent: req.IncludeContent == nil || *req.IncludeContent,
	}
	results, err := h.svc.Search(ctx, req.Query, opts)
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidQuery) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "search failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.svc.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read search stats", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": st}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Rebuild regenerates the approximate index, optionally for one fund.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		FundID *int64 `json:"fund_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
	}

	n, err := h.svc.RebuildIndex(ctx, req.FundID)
	if err != nil {
		if errors.Is(err, index.ErrUnavailable) {
			h.writeError(ctx, w, "UNAVAILABLE", "Approximate index is disabled", http.StatusServiceUnavailable)
			return
		}
		slog.ErrorContext(ctx, "index rebuild failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "rebuilt approximate index", "vectors", n)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]int{"vectors": n}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
