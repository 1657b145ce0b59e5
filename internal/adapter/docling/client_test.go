package docling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	return path
}

func TestConvert_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, convertPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "json", r.FormValue("to_formats"))
		_, header, err := r.FormFile("files")
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"document": {"json_content": {
				"tables": [{"prov": [{"page_no": 2}], "data": {"num_rows": 1, "num_cols": 2, "table_cells": [
					{"text": "Date", "start_row_offset_idx": 0, "start_col_offset_idx": 0, "row_span": 1, "col_span": 1}
				]}}],
				"texts": [{"text": "Fund Name: Alpha", "prov": [{"page_no": 1}]}]
			}}
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	doc, err := c.Convert(context.Background(), writeTempPDF(t))

	require.NoError(t, err)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, 2, doc.Tables[0].Prov[0].PageNo)
	assert.Equal(t, "Date", doc.Tables[0].Data.Cells[0].Text)
	require.Len(t, doc.Texts, 1)
	assert.Equal(t, "Fund Name: Alpha", doc.Texts[0].Text)
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		errMsg string
	}{
		{"http status", http.StatusInternalServerError, `{}`, "docling api error: 500"},
		{"failed conversion", http.StatusOK, `{"status":"failure","errors":[{"error_message":"bad pdf"}]}`, "bad pdf"},
		{"missing content", http.StatusOK, `{"status":"success","document":{}}`, "no json content"},
		{"bad json", http.StatusOK, `{`, "decode docling response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient("http://unused")
			c.SetBaseURL(server.URL)
			_, err := c.Convert(context.Background(), writeTempPDF(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConvert_MissingFile(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	_, err := c.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
