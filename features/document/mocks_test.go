package document_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/akbarharyadi/coding-test-3rd/features/document"
	"github.com/akbarharyadi/coding-test-3rd/features/fund"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Save(ctx context.Context, d *document.Document) error {
	args := m.Called(ctx, d)
	d.ID = 42
	return args.Error(0)
}

func (m *MockRepo) ExistsByHash(ctx context.Context, fundID int64, hash string) (bool, error) {
	args := m.Called(ctx, fundID, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id int64) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, fundID *int64) ([]document.Document, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id int64, status, errorMessage string) error {
	return m.Called(ctx, id, status, errorMessage).Error(0)
}

type MockFunds struct{ mock.Mock }

func (m *MockFunds) Get(ctx context.Context, id int64) (*fund.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fund.Fund), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}
