package fund

import (
	"context"
	"errors"
	"time"

	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

var ErrNotFound = errors.New("fund not found")

type Fund struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	GPName      *string   `json:"gp_name,omitempty"`
	FundType    *string   `json:"fund_type,omitempty"`
	VintageYear *int      `json:"vintage_year,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, f *Fund) error
	Get(ctx context.Context, id int64) (*Fund, error)
	List(ctx context.Context) ([]Fund, error)
	Transactions(ctx context.Context, fundID int64) (tables.Records, error)
}

// HeaderFiller is the part of the repository the document worker uses.
type HeaderFiller interface {
	FillHeader(ctx context.Context, fundID int64, info extract.FundInfo) error
}
