package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type IndexCounter interface {
	Count(ctx context.Context) int
}

type Handler struct {
	funds      Counter
	documents  Counter
	embeddings Counter
	jobs       Counter
	index      IndexCounter
}

// NewHandler takes an optional index; nil reports zero indexed vectors.
func NewHandler(funds, documents, embeddings, jobs Counter, index IndexCounter) *Handler {
	return &Handler{funds: funds, documents: documents, embeddings: embeddings, jobs: jobs, index: index}
}

type StatsResponse struct {
	Funds          int `json:"funds"`
	Documents      int `json:"documents"`
	Embeddings     int `json:"embeddings"`
	IndexedVectors int `json:"indexed_vectors"`
	FailedJobs     int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resp StatsResponse
	counts := []struct {
		name string
		c    Counter
		dst  *int
	}{
		{"funds", h.funds, &resp.Funds},
		{"documents", h.documents, &resp.Documents},
		{"embeddings", h.embeddings, &resp.Embeddings},
		{"jobs", h.jobs, &resp.FailedJobs},
	}
	for _, c := range counts {
		n, err := c.c.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.name, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.name, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}
	if h.index != nil {
		resp.IndexedVectors = h.index.Count(ctx)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
