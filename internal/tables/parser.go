package tables

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// classificationSample is how many data rows join the header in the classification corpus.
const classificationSample = 3

type classificationRule struct {
	Type     TableType
	Keywords []string
}

// classificationRules are evaluated in order and the first match wins.
// Adjustments come first because "recallable distribution" and
// "capital call adjustment" would otherwise land in the wrong family.
var classificationRules = []classificationRule{
	{Adjustments, []string{"adjustment", "recallable distribution", "capital call adjustment", "contribution adjustment", "fee adjustment"}},
	{Distributions, []string{"distribution", "return of capital", "recallable", "dividend", "income"}},
	{CapitalCalls, []string{"capital call", "call number", "capital contribution", "capital commitments"}},
}

// Column keyword lists per semantic role.
var (
	dateKeywords        = []string{"date"}
	amountKeywords      = []string{"amount", "value"}
	descriptionKeywords = []string{"description", "details", "notes"}
	callTypeKeywords    = []string{"call number", "call no", "call#", "call type", "type"}
	distTypeKeywords    = []string{"type", "distribution type"}
	recallableKeywords  = []string{"recallable", "recall"}
	adjTypeKeywords     = []string{"type", "adjustment type"}
	categoryKeywords    = []string{"category"}
)

// Classify assigns a table family from its header and leading data rows.
// It returns Unknown when nothing matches.
func Classify(header []string, rows [][]string) TableType {
	parts := make([]string, 0, classificationSample+1)
	parts = append(parts, strings.Join(header, " "))
	for i, row := range rows {
		if i == classificationSample {
			break
		}
		parts = append(parts, strings.Join(row, " "))
	}
	corpus := strings.ToLower(strings.Join(parts, " "))

	for _, rule := range classificationRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(corpus, kw) {
				return rule.Type
			}
		}
	}

	headerText := strings.ToLower(strings.Join(header, " "))
	if strings.Contains(headerText, "call") && strings.Contains(headerText, "amount") && !strings.Contains(headerText, "recallable") {
		return CapitalCalls
	}
	return Unknown
}

// Parser turns raw table candidates into typed tables. It holds no state.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse classifies and parses one candidate. It returns (nil, nil) when the
// table is empty, unclassifiable or yields no rows; only a malformed call
// returns an error.
func (p *Parser) Parse(ctx context.Context, candidate TableCandidate) (*ParsedTable, error) {
	if candidate.PageNumber < 0 {
		slog.ErrorContext(ctx, "rejecting table with negative page number", "page_number", candidate.PageNumber)
		return nil, fmt.Errorf("%w: page number %d", ErrInvalidInput, candidate.PageNumber)
	}

	cleaned := CleanTable(candidate.Rows)
	if len(cleaned) == 0 {
		return nil, nil
	}

	header := make([]string, len(cleaned[0]))
	for i, h := range cleaned[0] {
		header[i] = NormalizeHeader(h)
	}
	data := cleaned[1:]

	tableType := Classify(header, data)
	var rows []Row
	switch tableType {
	case CapitalCalls:
		rows = parseCapitalCalls(header, data, candidate.PageNumber)
	case Distributions:
		rows = parseDistributions(header, data, candidate.PageNumber)
	case Adjustments:
		rows = parseAdjustments(header, data, candidate.PageNumber)
	default:
		slog.DebugContext(ctx, "skipping unclassified table", "page_number", candidate.PageNumber, "header", header)
		return nil, nil
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return &ParsedTable{
		Type:       tableType,
		Rows:       rows,
		PageNumber: candidate.PageNumber,
		Header:     header,
	}, nil
}

// ParseAll parses every candidate, skipping those that yield nothing.
func (p *Parser) ParseAll(ctx context.Context, candidates []TableCandidate) ([]ParsedTable, error) {
	var out []ParsedTable
	for _, c := range candidates {
		t, err := p.Parse(ctx, c)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

// baseRow parses the mandatory date and amount columns. ok is false when the
// row should be dropped.
func baseRow(row []string, dateIdx, amountIdx int, dateField string, page int, header []string) (Row, bool) {
	if ShouldSkipRow(row) {
		return nil, false
	}
	date, ok := ParseDate(SafeGet(row, dateIdx))
	if !ok {
		return nil, false
	}
	amount, ok := ParseAmount(SafeGet(row, amountIdx))
	if !ok {
		return nil, false
	}
	return Row{
		dateField:       date,
		FieldAmount:     amount,
		FieldPageNumber: page,
		FieldHeader:     header,
	}, true
}

// optional returns the cell as a value, or nil when absent.
func optional(row []string, index int) any {
	if v := SafeGet(row, index); v != "" {
		return v
	}
	return nil
}

func parseCapitalCalls(header []string, data [][]string, page int) []Row {
	dateIdx := FindColumn(header, dateKeywords...)
	amountIdx := FindColumn(header, amountKeywords...)
	if dateIdx < 0 || amountIdx < 0 {
		return nil
	}
	typeIdx := FindColumn(header, callTypeKeywords...)
	descIdx := FindColumn(header, descriptionKeywords...)

	var rows []Row
	for _, r := range data {
		row, ok := baseRow(r, dateIdx, amountIdx, FieldCallDate, page, header)
		if !ok {
			continue
		}
		row[FieldCallType] = optional(r, typeIdx)
		row[FieldDescription] = optional(r, descIdx)
		rows = append(rows, row)
	}
	return rows
}

func parseDistributions(header []string, data [][]string, page int) []Row {
	dateIdx := FindColumn(header, dateKeywords...)
	amountIdx := FindColumn(header, amountKeywords...)
	if dateIdx < 0 || amountIdx < 0 {
		return nil
	}
	typeIdx := FindColumn(header, distTypeKeywords...)
	recallIdx := FindColumn(header, recallableKeywords...)
	descIdx := FindColumn(header, descriptionKeywords...)

	var rows []Row
	for _, r := range data {
		row, ok := baseRow(r, dateIdx, amountIdx, FieldDistributionDate, page, header)
		if !ok {
			continue
		}
		row[FieldDistributionType] = optional(r, typeIdx)
		row[FieldIsRecallable] = ParseBool(SafeGet(r, recallIdx))
		row[FieldDescription] = optional(r, descIdx)
		rows = append(rows, row)
	}
	return rows
}

func parseAdjustments(header []string, data [][]string, page int) []Row {
	dateIdx := FindColumn(header, dateKeywords...)
	amountIdx := FindColumn(header, amountKeywords...)
	if dateIdx < 0 || amountIdx < 0 {
		return nil
	}
	typeIdx := FindColumn(header, adjTypeKeywords...)
	categoryIdx := FindColumn(header, categoryKeywords...)
	descIdx := FindColumn(header, descriptionKeywords...)

	var rows []Row
	for _, r := range data {
		row, ok := baseRow(r, dateIdx, amountIdx, FieldAdjustmentDate, page, header)
		if !ok {
			continue
		}
		adjType := SafeGet(r, typeIdx)
		category := SafeGet(r, categoryIdx)
		row[FieldAdjustmentType] = optional(r, typeIdx)
		row[FieldCategory] = optional(r, categoryIdx)
		row[FieldIsContributionAdjustment] = IsContributionAdjustment(adjType, category)
		row[FieldDescription] = optional(r, descIdx)
		rows = append(rows, row)
	}
	return rows
}
