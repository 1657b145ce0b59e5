package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/ollama"
)

func TestEmbedder_Embed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		assert.Equal(t, "distribution notice", req["prompt"])
		w.Write([]byte(`{"embedding":[0.5,-0.25]}`))
	}))
	defer ts.Close()

	e := ollama.NewEmbedder(ts.URL, "", 2)
	vec, err := e.Embed(context.Background(), "distribution notice")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestEmbedder_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.Error(w, "model not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	e := ollama.NewEmbedder(ts.URL, "missing", 2)
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "status 404")
	assert.Error(t, e.Ping(context.Background()))
}
