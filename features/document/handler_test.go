package document_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/features/document"
	"github.com/akbarharyadi/coding-test-3rd/features/fund"
)

func multipartBody(t *testing.T, fundID, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if fundID != "" {
		require.NoError(t, w.WriteField("fund_id", fundID))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func newMux(h *document.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents/upload", h.Upload)
	mux.HandleFunc("GET /documents", h.List)
	mux.HandleFunc("GET /documents/{id}", h.Get)
	return mux
}

func TestHandler_Upload(t *testing.T) {
	tests := []struct {
		name       string
		fundID     string
		fileName   string
		setup      func(*MockRepo, *MockFunds, *MockPublisher)
		wantStatus int
		wantFiles  int
	}{
		{
			name:     "Accepted",
			fundID:   "3",
			fileName: "q4.pdf",
			setup: func(r *MockRepo, f *MockFunds, p *MockPublisher) {
				f.On("Get", mock.Anything, int64(3)).Return(&fund.Fund{ID: 3}, nil)
				r.On("ExistsByHash", mock.Anything, int64(3), mock.Anything).Return(false, nil)
				r.On("Save", mock.Anything, mock.Anything).Return(nil)
				p.On("Publish", mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: http.StatusAccepted,
			wantFiles:  1,
		},
		{
			name:       "Non pdf rejected",
			fundID:     "3",
			fileName:   "notes.txt",
			setup:      func(*MockRepo, *MockFunds, *MockPublisher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing fund id",
			fileName:   "q4.pdf",
			setup:      func(*MockRepo, *MockFunds, *MockPublisher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:     "Unknown fund removes file",
			fundID:   "9",
			fileName: "q4.pdf",
			setup: func(r *MockRepo, f *MockFunds, p *MockPublisher) {
				f.On("Get", mock.Anything, int64(9)).Return(nil, fund.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:     "Duplicate",
			fundID:   "3",
			fileName: "q4.pdf",
			setup: func(r *MockRepo, f *MockFunds, p *MockPublisher) {
				f.On("Get", mock.Anything, int64(3)).Return(&fund.Fund{ID: 3}, nil)
				r.On("ExistsByHash", mock.Anything, int64(3), mock.Anything).Return(true, nil)
			},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			repo, funds, pub := new(MockRepo), new(MockFunds), new(MockPublisher)
			tt.setup(repo, funds, pub)
			h := document.NewHandler(document.NewService(repo, funds, pub), dir, 1<<20)

			body, contentType := multipartBody(t, tt.fundID, tt.fileName, []byte("%PDF-1.4 test"))
			req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			newMux(h).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, tt.wantFiles)
			if tt.wantFiles == 1 {
				assert.Equal(t, ".pdf", filepath.Ext(entries[0].Name()))
			}
		})
	}
}

func TestHandler_Upload_TooLarge(t *testing.T) {
	h := document.NewHandler(document.NewService(new(MockRepo), new(MockFunds), new(MockPublisher)), t.TempDir(), 16)
	body, contentType := multipartBody(t, "3", "q4.pdf", bytes.Repeat([]byte("x"), 1024))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newMux(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetAndList(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Get", mock.Anything, int64(7)).Return(&document.Document{ID: 7, Status: "completed"}, nil)
	repo.On("Get", mock.Anything, int64(8)).Return(nil, document.ErrNotFound)
	fundID := int64(3)
	repo.On("List", mock.Anything, &fundID).Return([]document.Document{{ID: 7}}, nil)
	mux := newMux(document.NewHandler(document.NewService(repo, new(MockFunds), new(MockPublisher)), t.TempDir(), 0))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/7", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"parsing_status":"completed"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/8", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents?fund_id=3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents?fund_id=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
