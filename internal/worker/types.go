package worker

import (
	"context"

	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Output, error)
}

type ChunkStore interface {
	Insert(ctx context.Context, rec vector.Record) (int64, error)
	DeleteByDocument(ctx context.Context, documentID int64) (int64, error)
}

// IndexAppender is the approximate index; nil when it is disabled.
type IndexAppender interface {
	Append(ctx context.Context, vectors [][]float32, metadata []text.Metadata) error
}

// TransactionWriter replaces every financial record of a fund in one unit.
type TransactionWriter interface {
	ReplaceTransactions(ctx context.Context, fundID int64, records tables.Records) error
}

type FundUpdater interface {
	FillHeader(ctx context.Context, fundID int64, info extract.FundInfo) error
}

type DocumentNamer interface {
	DocumentNames(ctx context.Context, documentID int64) (title, fundName string, err error)
}

type DocumentStatusUpdater interface {
	UpdateStatus(ctx context.Context, id int64, status, errorMessage string) error
}

type DocumentProcessor interface {
	Process(ctx context.Context, documentID, fundID int64, path string) Result
}
