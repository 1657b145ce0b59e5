package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/akbarharyadi/coding-test-3rd/internal/adapter/docling"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
)

type Converter interface {
	Convert(ctx context.Context, path string) (*docling.Document, error)
}

// Structured extracts through a document-layout conversion service.
type Structured struct {
	conv Converter
}

func NewStructured(conv Converter) *Structured {
	return &Structured{conv: conv}
}

func (s *Structured) Name() string { return "docling" }

func (s *Structured) Extract(ctx context.Context, path string) ([]tables.TableCandidate, []text.Segment, error) {
	doc, err := s.conv.Convert(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	var candidates []tables.TableCandidate
	for _, t := range doc.Tables {
		rows := tableMatrix(t.Data)
		if len(rows) == 0 {
			continue
		}
		candidates = append(candidates, tables.TableCandidate{Rows: rows, PageNumber: pageOf(t.Prov)})
	}

	byPage := make(map[int][]string)
	for _, item := range doc.Texts {
		s := strings.TrimSpace(item.Text)
		if s == "" {
			continue
		}
		p := pageOf(item.Prov)
		byPage[p] = append(byPage[p], s)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	segments := make([]text.Segment, 0, len(pages))
	for _, p := range pages {
		segments = append(segments, text.Segment{PageNumber: p, Text: strings.Join(byPage[p], "\n")})
	}
	return candidates, segments, nil
}

func pageOf(prov []docling.Provenance) int {
	if len(prov) > 0 && prov[0].PageNo > 0 {
		return prov[0].PageNo
	}
	return 1
}

// tableMatrix expands spanned cells into every grid position they cover and
// drops rows with no content.
func tableMatrix(data *docling.TableData) [][]string {
	if data == nil || data.NumRows <= 0 || data.NumCols <= 0 {
		return nil
	}
	grid := make([][]string, data.NumRows)
	for i := range grid {
		grid[i] = make([]string, data.NumCols)
	}

	for _, cell := range data.Cells {
		txt := strings.TrimSpace(cell.Text)
		if txt == "" {
			continue
		}
		endRow := min(data.NumRows, cell.StartRow+max(cell.RowSpan, 1))
		endCol := min(data.NumCols, cell.StartCol+max(cell.ColSpan, 1))
		for r := max(cell.StartRow, 0); r < endRow; r++ {
			for c := max(cell.StartCol, 0); c < endCol; c++ {
				if grid[r][c] != "" {
					grid[r][c] += " " + txt
				} else {
					grid[r][c] = txt
				}
			}
		}
	}

	out := grid[:0]
	for _, row := range grid {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
