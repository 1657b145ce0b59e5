package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/akbarharyadi/coding-test-3rd/features/job"
	"github.com/akbarharyadi/coding-test-3rd/internal/metrics"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
)

const handlerName = "document-worker"

type FailedJobSaver interface {
	Save(ctx context.Context, j *job.Job) error
	DeleteByDocument(ctx context.Context, documentID int64) error
}

// DocumentConsumer handles documents.process messages. It always acks: a
// failed document is recorded as a failed job and only retried on request.
type DocumentConsumer struct {
	processor DocumentProcessor
	documents DocumentStatusUpdater
	jobs      FailedJobSaver
}

func NewDocumentConsumer(p DocumentProcessor, d DocumentStatusUpdater, j FailedJobSaver) *DocumentConsumer {
	return &DocumentConsumer{processor: p, documents: d, jobs: j}
}

func (h *DocumentConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload DocumentProcessPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		slog.ErrorContext(ctx, "dropping invalid payload", "document_id", payload.DocumentID, "fund_id", payload.FundID, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "processing document", "document_id", payload.DocumentID, "fund_id", payload.FundID, "path", payload.FilePath)

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, StatusProcessing, ""); err != nil {
		slog.ErrorContext(ctx, "failed to mark document processing", "document_id", payload.DocumentID, "error", err)
		return nil
	}

	start := time.Now()
	result := h.run(ctx, payload)
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.DocumentsProcessed.WithLabelValues(result.Status).Inc()

	if err := h.documents.UpdateStatus(ctx, payload.DocumentID, result.Status, result.Error); err != nil {
		slog.ErrorContext(ctx, "failed to store document status", "document_id", payload.DocumentID, "status", result.Status, "error", err)
	}

	if result.Status == StatusFailed {
		h.saveFailedJob(ctx, payload, m.Body, result.Error)
	} else if h.jobs != nil {
		if err := h.jobs.DeleteByDocument(ctx, payload.DocumentID); err != nil {
			slog.WarnContext(ctx, "failed to clear failed job", "document_id", payload.DocumentID, "error", err)
		}
	}
	return nil
}

// run converts a panic anywhere in the pipeline into a failed result.
func (h *DocumentConsumer) run(ctx context.Context, p DocumentProcessPayload) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "unexpected processing error", "document_id", p.DocumentID, "panic", r)
			result = failed(p.DocumentID, p.FundID, fmt.Sprintf("Unexpected processing error: %v", r))
		}
	}()
	return h.processor.Process(ctx, p.DocumentID, p.FundID, p.FilePath)
}

func (h *DocumentConsumer) saveFailedJob(ctx context.Context, p DocumentProcessPayload, body []byte, msg string) {
	if h.jobs == nil {
		return
	}
	failedJob := &job.Job{
		DocumentID: p.DocumentID,
		Handler:    handlerName,
		Payload:    json.RawMessage(body),
		Error:      msg,
	}
	if err := h.jobs.Save(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failedJob.ID)
}
