package text

import (
	"errors"
	"strings"
)

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Segment is the text of one page of an extracted document.
type Segment struct {
	PageNumber int
	Text       string
	DocumentID int64
	FundID     int64
}

// Metadata travels with a chunk into both vector backends. Offsets are rune
// offsets into the owning segment's text.
type Metadata struct {
	DocumentID   int64  `json:"document_id"`
	FundID       int64  `json:"fund_id"`
	PageNumber   int    `json:"page_number"`
	OffsetStart  int    `json:"offset_start"`
	OffsetEnd    int    `json:"offset_end"`
	Position     int    `json:"position"`
	DocumentName string `json:"document_name,omitempty"`
	FundName     string `json:"fund_name,omitempty"`
}

type Chunk struct {
	Content  string
	Metadata Metadata
}

// ChunkSegments slides a window of size runes over every segment, stepping by
// size-overlap. Overlap is clamped to [0, size-1]. Windows that are blank after
// trimming are skipped. Position counts emitted chunks within a segment.
func ChunkSegments(segments []Segment, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	overlap = max(0, min(overlap, size-1))

	var chunks []Chunk
	for _, seg := range segments {
		runes := []rune(seg.Text)
		n := len(runes)
		start, position := 0, 0
		for start < n {
			end := min(n, start+size)
			content := strings.TrimSpace(string(runes[start:end]))
			if content != "" {
				chunks = append(chunks, Chunk{
					Content: content,
					Metadata: Metadata{
						DocumentID:  seg.DocumentID,
						FundID:      seg.FundID,
						PageNumber:  seg.PageNumber,
						OffsetStart: start,
						OffsetEnd:   end,
						Position:    position,
					},
				})
				position++
			}
			if end >= n {
				break
			}
			start = max(end-overlap, start+1)
		}
	}
	return chunks, nil
}
