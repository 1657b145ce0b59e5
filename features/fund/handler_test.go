package fund_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/features/fund"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Create(ctx context.Context, f *fund.Fund) error {
	args := m.Called(ctx, f)
	f.ID = 11
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id int64) (*fund.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fund.Fund), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]fund.Fund, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fund.Fund), args.Error(1)
}

func (m *MockRepo) Transactions(ctx context.Context, id int64) (tables.Records, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(tables.Records), args.Error(1)
}

func newMux(h *fund.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /funds", h.Create)
	mux.HandleFunc("GET /funds", h.List)
	mux.HandleFunc("GET /funds/{id}", h.Get)
	mux.HandleFunc("GET /funds/{id}/transactions", h.Transactions)
	return mux
}

func TestHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*MockRepo)
		wantStatus int
	}{
		{
			name: "Success",
			body: `{"name":"Alpha Fund","gp_name":"Alpha GP","vintage_year":2020}`,
			setup: func(m *MockRepo) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(f *fund.Fund) bool {
					return f.Name == "Alpha Fund" && *f.GPName == "Alpha GP" && *f.VintageYear == 2020
				})).Return(nil)
			},
			wantStatus: http.StatusCreated,
		},
		{name: "Missing name", body: `{"gp_name":"x"}`, setup: func(*MockRepo) {}, wantStatus: http.StatusBadRequest},
		{name: "Bad json", body: `{`, setup: func(*MockRepo) {}, wantStatus: http.StatusBadRequest},
		{
			name:       "Repo error",
			body:       `{"name":"Alpha"}`,
			setup:      func(m *MockRepo) { m.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")) },
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepo)
			tt.setup(repo)
			rec := httptest.NewRecorder()
			newMux(fund.NewHandler(repo)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/funds", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_Get(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Get", mock.Anything, int64(5)).Return(&fund.Fund{ID: 5, Name: "Alpha"}, nil)
	repo.On("Get", mock.Anything, int64(6)).Return(nil, fund.ErrNotFound)
	mux := newMux(fund.NewHandler(repo))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funds/5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data fund.Fund `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Alpha", body.Data.Name)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funds/6", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funds/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Transactions(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Get", mock.Anything, int64(5)).Return(&fund.Fund{ID: 5}, nil)
	repo.On("Transactions", mock.Anything, int64(5)).Return(tables.Records{
		CapitalCalls: []tables.CapitalCall{{}},
	}, nil)

	rec := httptest.NewRecorder()
	newMux(fund.NewHandler(repo)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funds/5/transactions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Meta["capital_calls"])
	assert.Equal(t, 0, body.Meta["distributions"])
}

func TestHandler_List_Empty(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything).Return(nil, nil)

	rec := httptest.NewRecorder()
	newMux(fund.NewHandler(repo)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funds", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, rec.Body.String())
}
