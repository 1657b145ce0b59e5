package tables

import (
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DateLayouts is the ordered list of accepted date formats. The US layout is
// tried before the EU one, so ambiguous inputs such as 03/04/2023 resolve to March 4.
var DateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var (
	monthYearSplit = regexp.MustCompile(`[,\s]+`)
	nonNumeric     = regexp.MustCompile(`[^\d.\-]+`)
	embeddedNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

var (
	trueValues        = map[string]bool{"yes": true, "y": true, "true": true, "1": true}
	missingAmounts    = map[string]bool{"": true, "n/a": true, "na": true, "-": true}
	summaryCells      = map[string]bool{"total": true, "subtotal": true}
	headerRepeatCells = map[string]bool{"date": true, "type": true}
	contributionWords = []string{"contribution", "capital call", "fee", "management"}
)

// NormalizeCell trims surrounding whitespace.
func NormalizeCell(v string) string {
	return strings.TrimSpace(v)
}

// NormalizeHeader trims and lowercases a header cell.
func NormalizeHeader(v string) string {
	return strings.ToLower(NormalizeCell(v))
}

// CleanTable normalizes every cell and drops rows that are blank after normalization.
func CleanTable(rows [][]string) [][]string {
	cleaned := make([][]string, 0, len(rows))
	for _, row := range rows {
		out := make([]string, len(row))
		blank := true
		for i, cell := range row {
			out[i] = NormalizeCell(cell)
			if out[i] != "" {
				blank = false
			}
		}
		if !blank {
			cleaned = append(cleaned, out)
		}
	}
	return cleaned
}

// FindColumn returns the index of the leftmost header column containing any
// of the keywords, or -1.
func FindColumn(header []string, keywords ...string) int {
	for i, h := range header {
		h = NormalizeHeader(h)
		for _, kw := range keywords {
			if strings.Contains(h, strings.ToLower(kw)) {
				return i
			}
		}
	}
	return -1
}

// SafeGet returns the cell at index, or "" when the index is out of range.
func SafeGet(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

// ShouldSkipRow reports whether a row is a blank, a repeated header or a summary line.
func ShouldSkipRow(row []string) bool {
	if len(row) == 0 {
		return true
	}
	first := ""
	for _, cell := range row {
		c := NormalizeHeader(cell)
		if c == "" {
			continue
		}
		if first == "" {
			first = c
		}
		if summaryCells[c] {
			return true
		}
	}
	if first == "" {
		return true
	}
	return headerRepeatCells[first]
}

// ParseDate tries each layout in order, then a "Month Year" form with day 1.
// A nil or empty layouts list means DateLayouts.
func ParseDate(text string, layouts ...string) (civil.Date, bool) {
	value := NormalizeCell(text)
	if value == "" {
		return civil.Date{}, false
	}
	if len(layouts) == 0 {
		layouts = DateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return civil.DateOf(t), true
		}
	}

	parts := monthYearSplit.Split(value, -1)
	if len(parts) == 2 {
		for _, layout := range []string{"Jan 2006", "January 2006"} {
			if t, err := time.Parse(layout, parts[0]+" "+parts[1]); err == nil {
				return civil.DateOf(t), true
			}
		}
	}
	return civil.Date{}, false
}

// ParseAmount parses a money cell. Currency symbols and thousands separators
// are ignored. A leading minus or full parentheses mark a negative value, and
// both together are still a single negation.
func ParseAmount(text string) (decimal.Decimal, bool) {
	value := NormalizeCell(text)
	if missingAmounts[strings.ToLower(value)] {
		return decimal.Decimal{}, false
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = strings.TrimSpace(value[1 : len(value)-1])
	}
	if strings.HasPrefix(value, "-") {
		negative = true
		value = strings.TrimSpace(value[1:])
	}

	stripped := nonNumeric.ReplaceAllString(value, "")
	amount, err := decimal.NewFromString(stripped)
	if err != nil {
		match := embeddedNumber.FindString(stripped)
		if match == "" {
			return decimal.Decimal{}, false
		}
		amount, err = decimal.NewFromString(match)
		if err != nil {
			return decimal.Decimal{}, false
		}
	}

	if negative && amount.Sign() > 0 {
		amount = amount.Neg()
	}
	return amount, true
}

// ParseBool is closed-world: only yes/y/true/1 are true.
func ParseBool(text string) bool {
	return trueValues[NormalizeHeader(text)]
}

// IsContributionAdjustment reports whether an adjustment's type or category
// marks it as a correction to contributed capital.
func IsContributionAdjustment(adjustmentType, category string) bool {
	text := strings.ToLower(strings.TrimSpace(adjustmentType + " " + category))
	for _, w := range contributionWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
