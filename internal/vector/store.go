package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/akbarharyadi/coding-test-3rd/internal/text"
)

var ErrEmptyContent = errors.New("embedding content must not be empty")

// Record is one chunk embedding to persist.
type Record struct {
	DocumentID int64
	FundID     int64
	Content    string
	Embedding  []float32
	Metadata   text.Metadata
}

// Match is an exact similarity search hit. Score is cosine similarity.
type Match struct {
	ID         int64
	DocumentID int64
	FundID     int64
	Content    string
	Metadata   text.Metadata
	Score      float64
}

// Filter narrows a similarity search. Nil fields do not filter.
type Filter struct {
	FundID     *int64
	DocumentID *int64
}

// RawEmbedding is a stored row as text, left for the caller to parse so one
// bad row cannot fail a bulk read.
type RawEmbedding struct {
	DocumentID int64
	FundID     int64
	Embedding  string
	Metadata   []byte
}

// Store is the relational vector store and the source of truth for embeddings.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	if rec.Content == "" {
		return 0, ErrEmptyContent
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO document_embeddings (document_id, fund_id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rec.DocumentID, rec.FundID, rec.Content, pgvector.NewVector(rec.Embedding), meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}
	return id, nil
}

// SimilaritySearch returns the k rows closest to vec by cosine distance.
func (s *Store) SimilaritySearch(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, fund_id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM document_embeddings
		WHERE ($2::bigint IS NULL OR fund_id = $2)
		  AND ($3::bigint IS NULL OR document_id = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(vec), f.FundID, f.DocumentID, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var meta []byte
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.FundID, &m.Content, &meta, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			m.Metadata = text.Metadata{}
		}
		m.Metadata.DocumentID = m.DocumentID
		m.Metadata.FundID = m.FundID
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// AllEmbeddings streams every stored row, optionally for one fund, in insertion order.
func (s *Store) AllEmbeddings(ctx context.Context, fundID *int64) ([]RawEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, fund_id, embedding::text, metadata::text
		FROM document_embeddings
		WHERE ($1::bigint IS NULL OR fund_id = $1)
		ORDER BY id`, fundID)
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	defer rows.Close()

	var out []RawEmbedding
	for rows.Next() {
		var r RawEmbedding
		var meta sql.NullString
		if err := rows.Scan(&r.DocumentID, &r.FundID, &r.Embedding, &meta); err != nil {
			return nil, err
		}
		if meta.Valid {
			r.Metadata = []byte(meta.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ContentAt returns the chunk text stored for a document page at offsetStart.
func (s *Store) ContentAt(ctx context.Context, documentID int64, pageNumber, offsetStart int) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM document_embeddings
		WHERE document_id = $1
		  AND (metadata->>'page_number')::int = $2
		  AND (metadata->>'offset_start')::int = $3
		LIMIT 1`, documentID, pageNumber, offsetStart).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch chunk content: %w", err)
	}
	return content, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_embeddings WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document embeddings: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all embeddings, or only one fund's when fundID is set.
func (s *Store) Clear(ctx context.Context, fundID *int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_embeddings WHERE ($1::bigint IS NULL OR fund_id = $1)`, fundID)
	if err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}
