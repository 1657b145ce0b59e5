package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
)

const (
	// Horizontal gaps wider than this many ems split a line into cells.
	columnGapEm = 1.5
	// Gaps wider than this many ems inside a cell become a space.
	wordGapEm       = 0.15
	defaultFontSize = 10.0
)

// Geometry rebuilds tables from text positions: rows come from the page's
// baselines and cells from wide horizontal gaps.
type Geometry struct{}

func NewGeometry() *Geometry { return &Geometry{} }

func (g *Geometry) Name() string { return "pdf" }

func (g *Geometry) Extract(ctx context.Context, path string) (candidates []tables.TableCandidate, segments []text.Segment, err error) {
	defer func() {
		// the reader panics on some malformed streams
		if r := recover(); r != nil {
			candidates, segments = nil, nil
			err = fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, nil, fmt.Errorf("read page %d: %w", i, err)
		}

		lines := make([][]string, 0, len(rows))
		for _, row := range rows {
			glyphs := make([]glyph, 0, len(row.Content))
			for _, t := range row.Content {
				glyphs = append(glyphs, glyph{X: t.X, W: t.W, FontSize: t.FontSize, S: t.S})
			}
			if cells := splitLine(glyphs); len(cells) > 0 {
				lines = append(lines, cells)
			}
		}

		if pageText := joinLines(lines); pageText != "" {
			segments = append(segments, text.Segment{PageNumber: i, Text: pageText})
		}
		candidates = append(candidates, findTables(lines, i)...)
	}
	return candidates, segments, nil
}

type glyph struct {
	X, W, FontSize float64
	S              string
}

// splitLine orders glyphs left to right and groups them into cells.
func splitLine(glyphs []glyph) []string {
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })

	var (
		cells   []string
		cur     strings.Builder
		prevEnd float64
		started bool
		space   bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, s)
		}
		cur.Reset()
	}

	for _, g := range glyphs {
		fs := g.FontSize
		if fs <= 0 {
			fs = defaultFontSize
		}
		if strings.TrimSpace(g.S) == "" {
			space = true
			if started {
				prevEnd = max(prevEnd, g.X+g.W)
			}
			continue
		}
		if started {
			gap := g.X - prevEnd
			switch {
			case gap > columnGapEm*fs:
				flush()
			case space || gap > wordGapEm*fs:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(g.S)
		prevEnd = g.X + g.W
		started = true
		space = false
	}
	flush()
	return cells
}

func joinLines(lines [][]string) string {
	var b strings.Builder
	for _, cells := range lines {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(cells, " "))
	}
	return b.String()
}

// findTables treats every run of two or more consecutive multi-cell lines as
// one table, padding short rows.
func findTables(lines [][]string, page int) []tables.TableCandidate {
	var out []tables.TableCandidate
	emit := func(block [][]string) {
		if len(block) < 2 {
			return
		}
		width := 0
		for _, r := range block {
			width = max(width, len(r))
		}
		rows := make([][]string, len(block))
		for i, r := range block {
			rows[i] = make([]string, width)
			copy(rows[i], r)
		}
		out = append(out, tables.TableCandidate{Rows: rows, PageNumber: page})
	}

	var block [][]string
	for _, cells := range lines {
		if len(cells) >= 2 {
			block = append(block, cells)
			continue
		}
		emit(block)
		block = nil
	}
	emit(block)
	return out
}
