package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/akbarharyadi/coding-test-3rd/features/job"
	"github.com/akbarharyadi/coding-test-3rd/internal/extract"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
	"github.com/akbarharyadi/coding-test-3rd/internal/worker"
)

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, path string) (extract.Output, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(extract.Output), args.Error(1)
}

type MockTransactions struct{ mock.Mock }

func (m *MockTransactions) ReplaceTransactions(ctx context.Context, fundID int64, r tables.Records) error {
	return m.Called(ctx, fundID, r).Error(0)
}

type MockFunds struct{ mock.Mock }

func (m *MockFunds) FillHeader(ctx context.Context, fundID int64, info extract.FundInfo) error {
	return m.Called(ctx, fundID, info).Error(0)
}

type MockNames struct{ mock.Mock }

func (m *MockNames) DocumentNames(ctx context.Context, id int64) (string, string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.String(1), args.Error(2)
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChunks struct{ mock.Mock }

func (m *MockChunks) Insert(ctx context.Context, rec vector.Record) (int64, error) {
	args := m.Called(ctx, rec)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockChunks) DeleteByDocument(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return int64(args.Int(0)), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Append(ctx context.Context, vectors [][]float32, metas []text.Metadata) error {
	return m.Called(ctx, vectors, metas).Error(0)
}

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Process(ctx context.Context, documentID, fundID int64, path string) worker.Result {
	return m.Called(ctx, documentID, fundID, path).Get(0).(worker.Result)
}

type MockStatus struct{ mock.Mock }

func (m *MockStatus) UpdateStatus(ctx context.Context, id int64, status, msg string) error {
	return m.Called(ctx, id, status, msg).Error(0)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockJobRepo) DeleteByDocument(ctx context.Context, documentID int64) error {
	return m.Called(ctx, documentID).Error(0)
}
