package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry is one line of the JSON-lines search audit log.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	Backend       string    `json:"backend"`
	K             int       `json:"k"`
	FundID        *int64    `json:"fund_id,omitempty"`
	DocumentID    *int64    `json:"document_id,omitempty"`
	NumResults    int       `json:"num_results"`
	TopScore      float64   `json:"top_score,omitempty"`
	Sources       []Backend `json:"sources,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
	CorrelationID string    `json:"correlation_id"`
}

type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends to path, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.closer = f
	return l, nil
}

// Log records a completed search. took is stored in milliseconds.
func (l *QueryLogger) Log(entry QueryLogEntry, results []Result, took time.Duration) {
	entry.Timestamp = time.Now().UTC()
	entry.LatencyMs = took.Milliseconds()
	entry.NumResults = len(results)

	seen := make(map[Backend]bool)
	for _, r := range results {
		if r.Score > entry.TopScore {
			entry.TopScore = r.Score
		}
		if !seen[r.Source] {
			seen[r.Source] = true
			entry.Sources = append(entry.Sources, r.Source)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}
