package retrieval

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogger_Entry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)
	fundID := int64(3)

	logger.Log(QueryLogEntry{Query: "dpi", Backend: "hybrid", K: 5, FundID: &fundID}, []Result{
		{Score: 0.7, Source: BackendExact},
		{Score: 0.9, Source: BackendApproximate},
		{Score: 0.4, Source: BackendExact},
	}, 1500*time.Millisecond)

	var entry QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dpi", entry.Query)
	assert.Equal(t, 3, entry.NumResults)
	assert.InDelta(t, 0.9, entry.TopScore, 1e-9)
	assert.Equal(t, []Backend{BackendExact, BackendApproximate}, entry.Sources)
	assert.Equal(t, int64(1500), entry.LatencyMs)
	require.NotNil(t, entry.FundID)
	assert.Equal(t, int64(3), *entry.FundID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestQueryLogger_ThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)

	concurrency := 50
	iterations := 100
	var wg sync.WaitGroup

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				logger.Log(QueryLogEntry{Query: "test"}, nil, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	decoder := json.NewDecoder(&buf)
	count := 0
	for decoder.More() {
		var entry QueryLogEntry
		require.NoError(t, decoder.Decode(&entry), "entry %d", count)
		count++
	}
	assert.Equal(t, concurrency*iterations, count)
}

func TestFileQueryLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "query.log")

	logger, err := NewFileQueryLogger(path)
	require.NoError(t, err)
	logger.Log(QueryLogEntry{Query: "first"}, nil, 0)
	require.NoError(t, logger.Close())

	logger, err = NewFileQueryLogger(path)
	require.NoError(t, err)
	logger.Log(QueryLogEntry{Query: "second"}, nil, 0)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), `"query":"second"`)
}
