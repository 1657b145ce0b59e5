package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/akbarharyadi/coding-test-3rd/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: 5 * time.Second}
}

// SetPublishTimeout bounds how long Retry waits on the queue.
func (s *Service) SetPublishTimeout(d time.Duration) {
	s.publishTimeout = d
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// Retry requeues the stored payload and removes the job once the queue accepts it.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicDocumentProcess, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "requeued failed job", "id", id, "document_id", job.DocumentID, "retries", job.Retries)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Dismiss drops a failed job without requeueing its document.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "dismissed failed job", "id", id, "document_id", job.DocumentID)
	return nil
}
