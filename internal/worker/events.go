package worker

import (
	"errors"
	"fmt"
)

// DocumentProcessPayload is the body of a documents.process message.
type DocumentProcessPayload struct {
	DocumentID    int64  `json:"document_id"`
	FundID        int64  `json:"fund_id"`
	FilePath      string `json:"file_path"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ErrInvalidPayload marks messages that can never be processed.
var ErrInvalidPayload = errors.New("invalid document payload")

func (pl DocumentProcessPayload) Validate() error {
	switch {
	case pl.DocumentID <= 0:
		return fmt.Errorf("%w: Invalid document ID", ErrInvalidPayload)
	case pl.FilePath == "":
		return fmt.Errorf("%w: Invalid file path", ErrInvalidPayload)
	case pl.FundID <= 0:
		return fmt.Errorf("%w: Invalid fund ID", ErrInvalidPayload)
	}
	return nil
}
