package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akbarharyadi/coding-test-3rd/features/fund"
	"github.com/akbarharyadi/coding-test-3rd/internal/config"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/worker"
)

const StatusPending = "pending"

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

type Document struct {
	ID           int64     `json:"id"`
	FundID       int64     `json:"fund_id"`
	FileName     string    `json:"file_name"`
	FilePath     string    `json:"-"`
	ContentHash  string    `json:"-"`
	Status       string    `json:"parsing_status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	UploadDate   time.Time `json:"upload_date"`
}

type Repository interface {
	Save(ctx context.Context, d *Document) error
	ExistsByHash(ctx context.Context, fundID int64, hash string) (bool, error)
	Get(ctx context.Context, id int64) (*Document, error)
	List(ctx context.Context, fundID *int64) ([]Document, error)
	UpdateStatus(ctx context.Context, id int64, status, errorMessage string) error
}

type FundGetter interface {
	Get(ctx context.Context, id int64) (*fund.Fund, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo  Repository
	funds FundGetter
	pub   EventPublisher
}

func NewService(repo Repository, funds FundGetter, pub EventPublisher) *Service {
	return &Service{repo: repo, funds: funds, pub: pub}
}

// Upload records a pending document and queues it for processing.
func (s *Service) Upload(ctx context.Context, fundID int64, fileName, path, hash string) (*Document, error) {
	if _, err := s.funds.Get(ctx, fundID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByHash(ctx, fundID, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	doc := &Document{
		FundID:      fundID,
		FileName:    fileName,
		FilePath:    path,
		ContentHash: hash,
		Status:      StatusPending,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(worker.DocumentProcessPayload{
		DocumentID:    doc.ID,
		FundID:        fundID,
		FilePath:      path,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(config.TopicDocumentProcess, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish document event", "document_id", doc.ID, "error", err)
		msg := fmt.Sprintf("Failed to enqueue processing: %v", err)
		if uerr := s.repo.UpdateStatus(ctx, doc.ID, worker.StatusFailed, msg); uerr != nil {
			slog.WarnContext(ctx, "failed to mark document failed", "document_id", doc.ID, "error", uerr)
		}
		return nil, fmt.Errorf("enqueue document: %w", err)
	}
	slog.InfoContext(ctx, "queued document for processing", "document_id", doc.ID, "fund_id", fundID)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, fundID *int64) ([]Document, error) {
	return s.repo.List(ctx, fundID)
}
