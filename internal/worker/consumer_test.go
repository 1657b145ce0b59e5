package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/akbarharyadi/coding-test-3rd/features/job"
	"github.com/akbarharyadi/coding-test-3rd/internal/middleware"
	"github.com/akbarharyadi/coding-test-3rd/internal/worker"
)

func message(t *testing.T, p worker.DocumentProcessPayload) *nsq.Message {
	body, err := json.Marshal(p)
	assert.NoError(t, err)
	return &nsq.Message{Body: body}
}

var validPayload = worker.DocumentProcessPayload{DocumentID: 3, FundID: 7, FilePath: "/uploads/q4.pdf", CorrelationID: "corr-1"}

func TestDocumentConsumer_Success(t *testing.T) {
	proc, status, jobs := new(MockProcessor), new(MockStatus), new(MockJobRepo)
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusProcessing, "").Return(nil)
	proc.On("Process", mock.Anything, int64(3), int64(7), "/uploads/q4.pdf").
		Return(worker.Result{Status: worker.StatusCompleted, DocumentID: 3, FundID: 7})
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusCompleted, "").Return(nil)
	jobs.On("DeleteByDocument", mock.Anything, int64(3)).Return(nil)

	err := worker.NewDocumentConsumer(proc, status, jobs).HandleMessage(message(t, validPayload))

	assert.NoError(t, err)
	status.AssertExpectations(t)
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestDocumentConsumer_CarriesCorrelationID(t *testing.T) {
	proc, status := new(MockProcessor), new(MockStatus)
	status.On("UpdateStatus", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(nil)
	proc.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(middleware.CorrelationKey) == "corr-1"
	}), int64(3), int64(7), "/uploads/q4.pdf").Return(worker.Result{Status: worker.StatusCompleted})
	jobs := new(MockJobRepo)
	jobs.On("DeleteByDocument", mock.Anything, int64(3)).Return(nil)

	err := worker.NewDocumentConsumer(proc, status, jobs).HandleMessage(message(t, validPayload))

	assert.NoError(t, err)
	proc.AssertExpectations(t)
}

func TestDocumentConsumer_FailureSavesJob(t *testing.T) {
	proc, status, jobs := new(MockProcessor), new(MockStatus), new(MockJobRepo)
	msg := message(t, validPayload)
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusProcessing, "").Return(nil)
	proc.On("Process", mock.Anything, int64(3), int64(7), "/uploads/q4.pdf").
		Return(worker.Result{Status: worker.StatusFailed, Error: "Document parsing failed: bad xref"})
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusFailed, "Document parsing failed: bad xref").Return(nil)
	jobs.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.DocumentID == 3 &&
			j.Handler == "document-worker" &&
			j.Error == "Document parsing failed: bad xref" &&
			string(j.Payload) == string(msg.Body)
	})).Return(nil)

	err := worker.NewDocumentConsumer(proc, status, jobs).HandleMessage(msg)

	assert.NoError(t, err)
	jobs.AssertExpectations(t)
	status.AssertExpectations(t)
}

func TestDocumentConsumer_PanicMarksFailed(t *testing.T) {
	proc, status, jobs := new(MockProcessor), new(MockStatus), new(MockJobRepo)
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusProcessing, "").Return(nil)
	proc.On("Process", mock.Anything, int64(3), int64(7), "/uploads/q4.pdf").Run(func(mock.Arguments) {
		panic("kaboom")
	}).Return(worker.Result{})
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusFailed, "Unexpected processing error: kaboom").Return(nil)
	jobs.On("Save", mock.Anything, mock.Anything).Return(nil)

	err := worker.NewDocumentConsumer(proc, status, jobs).HandleMessage(message(t, validPayload))

	assert.NoError(t, err)
	status.AssertExpectations(t)
}

func TestDocumentConsumer_DropsBadMessages(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty body", nil},
		{"poison pill", []byte("invalid json")},
		{"missing document id", []byte(`{"fund_id":7,"file_path":"/x.pdf"}`)},
		{"missing path", []byte(`{"document_id":3,"fund_id":7}`)},
		{"missing fund", []byte(`{"document_id":3,"file_path":"/x.pdf"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, status := new(MockProcessor), new(MockStatus)
			err := worker.NewDocumentConsumer(proc, status, new(MockJobRepo)).HandleMessage(&nsq.Message{Body: tt.body})
			assert.NoError(t, err)
			status.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDocumentConsumer_UnknownDocument(t *testing.T) {
	proc, status := new(MockProcessor), new(MockStatus)
	status.On("UpdateStatus", mock.Anything, int64(3), worker.StatusProcessing, "").Return(assert.AnError)

	err := worker.NewDocumentConsumer(proc, status, new(MockJobRepo)).HandleMessage(message(t, validPayload))

	assert.NoError(t, err)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayloadValidate(t *testing.T) {
	assert.NoError(t, validPayload.Validate())
	bad := validPayload
	bad.FundID = 0
	assert.ErrorIs(t, bad.Validate(), worker.ErrInvalidPayload)
	assert.ErrorContains(t, bad.Validate(), "Invalid fund ID")
}
