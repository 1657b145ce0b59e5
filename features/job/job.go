package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

// Job is a document processing attempt that failed and can be replayed.
type Job struct {
	ID         string          `json:"id"`
	DocumentID int64           `json:"document_id"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}
