package tables

import (
	"errors"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid table input")

// TableType is the financial record family a table holds.
type TableType string

const (
	CapitalCalls  TableType = "capital_calls"
	Distributions TableType = "distributions"
	Adjustments   TableType = "adjustments"
	Unknown       TableType = ""
)

// AllTypes lists the known record families in persistence order.
var AllTypes = []TableType{CapitalCalls, Distributions, Adjustments}

// Row field names shared by the parser and the cleaner.
const (
	FieldCallDate                 = "call_date"
	FieldCallType                 = "call_type"
	FieldDistributionDate         = "distribution_date"
	FieldDistributionType         = "distribution_type"
	FieldIsRecallable             = "is_recallable"
	FieldAdjustmentDate           = "adjustment_date"
	FieldAdjustmentType           = "adjustment_type"
	FieldCategory                 = "category"
	FieldIsContributionAdjustment = "is_contribution_adjustment"
	FieldAmount                   = "amount"
	FieldDescription              = "description"
	FieldPageNumber               = "page_number"
	FieldHeader                   = "header"
)

// Row is a loosely typed parsed row. Values are civil.Date, decimal.Decimal,
// string, bool or nil depending on the field, but rows from other sources may
// carry raw strings or numbers that the cleaner coerces.
type Row map[string]any

// TableCandidate is a raw cell matrix as produced by an extraction backend.
// PageNumber is 1-indexed.
type TableCandidate struct {
	Rows       [][]string
	PageNumber int
}

// ParsedTable is the typed result of classifying and parsing one candidate.
type ParsedTable struct {
	Type       TableType
	Rows       []Row
	PageNumber int
	Header     []string
}

type CapitalCall struct {
	CallDate    civil.Date      `json:"call_date"`
	CallType    *string         `json:"call_type,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description,omitempty"`
}

type Distribution struct {
	DistributionDate civil.Date      `json:"distribution_date"`
	DistributionType *string         `json:"distribution_type,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	IsRecallable     bool            `json:"is_recallable"`
	Description      *string         `json:"description,omitempty"`
}

type Adjustment struct {
	AdjustmentDate           civil.Date      `json:"adjustment_date"`
	AdjustmentType           *string         `json:"adjustment_type,omitempty"`
	Category                 *string         `json:"category,omitempty"`
	Amount                   decimal.Decimal `json:"amount"`
	IsContributionAdjustment bool            `json:"is_contribution_adjustment"`
	Description              *string         `json:"description,omitempty"`
}

// Records is the cleaned output for one fund, grouped by family.
type Records struct {
	CapitalCalls  []CapitalCall  `json:"capital_calls"`
	Distributions []Distribution `json:"distributions"`
	Adjustments   []Adjustment   `json:"adjustments"`
}

// Counts returns the number of records per family.
func (r Records) Counts() map[TableType]int {
	return map[TableType]int{
		CapitalCalls:  len(r.CapitalCalls),
		Distributions: len(r.Distributions),
		Adjustments:   len(r.Adjustments),
	}
}

// Group collects parsed rows by family, preserving table and row order.
func Group(parsed []ParsedTable) map[TableType][]Row {
	grouped := make(map[TableType][]Row)
	for _, t := range parsed {
		grouped[t.Type] = append(grouped[t.Type], t.Rows...)
	}
	return grouped
}
