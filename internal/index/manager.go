// Package index maintains the approximate nearest-neighbour index: a
// disk-persisted, rebuildable copy of the relational embedding store.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/akbarharyadi/coding-test-3rd/internal/text"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

const (
	IndexFileName    = "documents.index"
	MetadataFileName = "documents_metadata.json"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidArgument   = errors.New("invalid index argument")
	ErrUnavailable       = errors.New("approximate index unavailable")
)

// Source supplies stored embeddings for a rebuild.
type Source interface {
	AllEmbeddings(ctx context.Context, fundID *int64) ([]vector.RawEmbedding, error)
}

// Hit is one search result. Position is the row in the index and the
// metadata list.
type Hit struct {
	Metadata text.Metadata `json:"metadata"`
	Score    float32       `json:"score"`
	Position int           `json:"index"`
}

// state is an immutable snapshot; mutations replace it.
type state struct {
	index    *flatIndex
	metadata []text.Metadata
	modTime  time.Time
	size     int64
}

type Manager struct {
	dir    string
	dim    int
	source Source

	mu      sync.Mutex
	current *state
}

func NewManager(dir string, dim int, source Source) *Manager {
	return &Manager{dir: dir, dim: dim, source: source}
}

func (m *Manager) IndexPath() string    { return filepath.Join(m.dir, IndexFileName) }
func (m *Manager) MetadataPath() string { return filepath.Join(m.dir, MetadataFileName) }
func (m *Manager) Dimension() int       { return m.dim }

// Exists reports whether a persisted index file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.IndexPath())
	return err == nil
}

// Count returns the number of indexed vectors.
func (m *Manager) Count(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx).index.Len()
}

// Append normalizes and adds vectors with their metadata. The whole batch is
// rejected on any length or dimension mismatch.
func (m *Manager) Append(ctx context.Context, vectors [][]float32, metadata []text.Metadata) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: %d vectors but %d metadata entries", ErrInvalidArgument, len(vectors), len(metadata))
	}
	if len(vectors) == 0 {
		return nil
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != m.dim {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), m.dim)
		}
		normalized[i] = Normalize(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.loadLocked(ctx)
	meta := make([]text.Metadata, 0, len(cur.metadata)+len(metadata))
	meta = append(meta, cur.metadata...)
	meta = append(meta, metadata...)

	next := &state{index: cur.index.withVectors(normalized), metadata: meta}
	if err := m.persistLocked(next); err != nil {
		return err
	}
	slog.InfoContext(ctx, "appended vectors to approximate index", "added", len(vectors), "total", next.index.Len())
	return nil
}

// Rebuild replaces the index with every stored embedding, optionally for one
// fund. Rows that cannot be parsed are skipped. An empty result removes the
// index files.
func (m *Manager) Rebuild(ctx context.Context, fundID *int64) (int, error) {
	if m.source == nil {
		return 0, ErrUnavailable
	}
	rows, err := m.source.AllEmbeddings(ctx, fundID)
	if err != nil {
		return 0, fmt.Errorf("load stored embeddings: %w", err)
	}

	var vectors [][]float32
	var metadata []text.Metadata
	for i, row := range rows {
		vec, err := parseEmbedding(row.Embedding)
		if err != nil {
			slog.WarnContext(ctx, "skipping unparseable embedding", "row", i, "document_id", row.DocumentID, "error", err)
			continue
		}
		if len(vec) != m.dim {
			slog.WarnContext(ctx, "skipping embedding with wrong dimension", "row", i, "document_id", row.DocumentID, "dims", len(vec))
			continue
		}
		var meta text.Metadata
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				slog.WarnContext(ctx, "invalid embedding metadata, using row ids", "row", i, "error", err)
				meta = text.Metadata{}
			}
		}
		meta.DocumentID = row.DocumentID
		meta.FundID = row.FundID
		vectors = append(vectors, Normalize(vec))
		metadata = append(metadata, meta)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(vectors) == 0 {
		if err := m.clearLocked(); err != nil {
			return 0, err
		}
		slog.InfoContext(ctx, "approximate index rebuilt empty, files removed")
		return 0, nil
	}

	next := &state{index: newFlatIndex(m.dim).withVectors(vectors), metadata: metadata}
	if err := m.persistLocked(next); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "approximate index rebuilt", "vectors", len(vectors), "skipped", len(rows)-len(vectors))
	return len(vectors), nil
}

// Search returns up to k hits for query. It over-fetches 2k candidates so a
// fund filter still has something to keep.
func (m *Manager) Search(ctx context.Context, query []float32, k int, fundID *int64) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d dims, want %d", ErrDimensionMismatch, len(query), m.dim)
	}
	if !m.Exists() {
		return nil, nil
	}

	m.mu.Lock()
	snap := m.loadLocked(ctx)
	m.mu.Unlock()

	total := snap.index.Len()
	if total == 0 {
		return nil, nil
	}

	var hits []Hit
	for _, c := range snap.index.search(Normalize(query), min(2*k, total)) {
		if c.position < 0 || c.position >= len(snap.metadata) {
			continue
		}
		meta := snap.metadata[c.position]
		if fundID != nil && meta.FundID != *fundID {
			continue
		}
		hits = append(hits, Hit{Metadata: meta, Score: c.score, Position: c.position})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Clear removes the persisted files and empties the in-memory index.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked()
}

func (m *Manager) empty() *state {
	return &state{index: newFlatIndex(m.dim)}
}

// loadLocked returns the current snapshot, reloading when the file on disk
// changed. Missing files mean an empty index; a wrong dimension or a corrupt
// file pair is discarded.
func (m *Manager) loadLocked(ctx context.Context) *state {
	info, err := os.Stat(m.IndexPath())
	if err != nil {
		m.current = m.empty()
		return m.current
	}
	if m.current != nil && m.current.modTime.Equal(info.ModTime()) && m.current.size == info.Size() {
		return m.current
	}

	st, err := m.readFiles(info.Size())
	if err != nil {
		slog.WarnContext(ctx, "discarding approximate index", "path", m.IndexPath(), "error", err)
		if cerr := m.clearLocked(); cerr != nil {
			slog.ErrorContext(ctx, "failed to remove approximate index files", "error", cerr)
		}
		return m.current
	}
	st.modTime, st.size = info.ModTime(), info.Size()
	m.current = st
	return st
}

func (m *Manager) readFiles(size int64) (*state, error) {
	f, err := os.Open(m.IndexPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := readFlatIndex(f, size)
	if err != nil {
		return nil, err
	}
	if idx.dim != m.dim {
		return nil, fmt.Errorf("%w: stored %d, configured %d", ErrDimensionMismatch, idx.dim, m.dim)
	}

	var meta []text.Metadata
	raw, err := os.ReadFile(m.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(meta) != idx.Len() {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata entries", errBadIndex, idx.Len(), len(meta))
	}
	return &state{index: idx, metadata: meta}, nil
}

func (m *Manager) persistLocked(next *state) error {
	if err := writeFileAtomic(m.IndexPath(), next.index.writeTo); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	err := writeFileAtomic(m.MetadataPath(), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(next.metadata)
	})
	if err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	if info, err := os.Stat(m.IndexPath()); err == nil {
		next.modTime, next.size = info.ModTime(), info.Size()
	}
	m.current = next
	return nil
}

func (m *Manager) clearLocked() error {
	m.current = m.empty()
	for _, p := range []string{m.IndexPath(), m.MetadataPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func parseEmbedding(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}
	var v pgvector.Vector
	if err := v.Scan(raw); err != nil {
		return nil, err
	}
	return v.Slice(), nil
}
