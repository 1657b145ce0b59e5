package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// DB is the subset of *sql.DB the vector package needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const tableName = "document_embeddings"

// EnsureSchema makes sure document_embeddings exists with a vector column of
// exactly dim dimensions. A table with another width is dropped and
// recreated, because its stored embeddings are unusable; recreated reports that.
func EnsureSchema(ctx context.Context, db DB, dim int) (recreated bool, err error) {
	if dim <= 0 {
		return false, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return false, fmt.Errorf("enable pgvector: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, `
		SELECT a.atttypmod FROM pg_attribute a
		WHERE a.attrelid = to_regclass('public.document_embeddings') AND a.attname = 'embedding'`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("inspect embedding column: %w", err)
	case current == dim:
		return false, nil
	default:
		slog.WarnContext(ctx, "embedding dimension changed, recreating table", "table", tableName, "stored", current, "configured", dim)
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS document_embeddings`); err != nil {
			return false, fmt.Errorf("drop %s: %w", tableName, err)
		}
		recreated = true
	}

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_embeddings (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL,
			fund_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dim)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return recreated, fmt.Errorf("create %s: %w", tableName, err)
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS document_embeddings_embedding_idx ON document_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS document_embeddings_fund_idx ON document_embeddings (fund_id)`,
		`CREATE INDEX IF NOT EXISTS document_embeddings_document_idx ON document_embeddings (document_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return recreated, fmt.Errorf("index %s: %w", tableName, err)
		}
	}
	return recreated, nil
}
