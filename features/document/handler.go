package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/akbarharyadi/coding-test-3rd/features/fund"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
)

type Handler struct {
	service   *Service
	uploadDir string
	maxBytes  int64
}

func NewHandler(service *Service, uploadDir string, maxBytes int64) *Handler {
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Handler{service: service, uploadDir: uploadDir, maxBytes: maxBytes}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	fundID, err := strconv.ParseInt(r.FormValue("fund_id"), 10, 64)
	if err != nil || fundID <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "fund_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		h.writeError(ctx, w, "BAD_REQUEST", "Only PDF files are supported", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create upload directory", "error", err, "path", h.uploadDir)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	base := filepath.Base(header.Filename)
	path := filepath.Clean(filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), base)))

	hash, err := saveFile(path, file)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save upload", "error", err, "path", path)
		_ = os.Remove(path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	doc, err := h.service.Upload(ctx, fundID, base, path, hash)
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			slog.WarnContext(ctx, "failed to clean up uploaded file", "error", removeErr, "path", path)
		}
		switch {
		case errors.Is(err, fund.ErrNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Fund not found", http.StatusNotFound)
		case errors.Is(err, ErrDuplicate):
			h.writeError(ctx, w, "CONFLICT", "Duplicate detected", http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "upload failed", "error", err, "fund_id", fundID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func saveFile(path string, src io.Reader) (string, error) {
	dst, err := os.Create(path) // #nosec G304 -- path is uuid-prefixed basename inside the upload dir
	if err != nil {
		return "", err
	}
	defer dst.Close()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid document id", http.StatusBadRequest)
		return
	}

	doc, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var fundID *int64
	if raw := r.URL.Query().Get("fund_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid fund_id", http.StatusBadRequest)
			return
		}
		fundID = &id
	}

	docs, err := h.service.List(ctx, fundID)
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}); err != nil {
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
