// Package cleaner validates, normalizes and deduplicates parsed financial rows.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

// Rejection reasons reported per invalid row.
var (
	ErrInvalidCallDate         = errors.New("missing or invalid call_date")
	ErrInvalidDistributionDate = errors.New("missing or invalid distribution_date")
	ErrInvalidAdjustmentDate   = errors.New("missing or invalid adjustment_date")
	ErrInvalidAmount           = errors.New("missing or invalid amount")
	ErrZeroCapitalCall         = errors.New("capital call amount cannot be zero")
	ErrZeroDistribution        = errors.New("distribution amount cannot be zero")
)

// Result is the outcome of one cleaning pass.
type Result struct {
	Records tables.Records
	// Issues holds one reason per rejected row, in encounter order.
	Issues map[tables.TableType][]string
}

type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

// Clean validates every row. Invalid rows are reported in Issues, exact
// duplicates of an earlier row are dropped silently.
func (c *Cleaner) Clean(ctx context.Context, input map[tables.TableType][]tables.Row) Result {
	res := Result{Issues: make(map[tables.TableType][]string)}

	for tableType, rows := range input {
		known := false
		for _, t := range tables.AllTypes {
			if t == tableType {
				known = true
			}
		}
		if !known && len(rows) > 0 {
			slog.WarnContext(ctx, "ignoring rows of unknown table type", "table_type", tableType, "rows", len(rows))
		}
	}

	for _, tableType := range tables.AllTypes {
		rows, ok := input[tableType]
		if !ok {
			continue
		}
		res.Issues[tableType] = []string{}
		var valid, invalid, duplicates int

		switch tableType {
		case tables.CapitalCalls:
			seen := make(map[string]struct{})
			for _, row := range rows {
				rec, err := cleanCapitalCall(row)
				if err != nil {
					invalid++
					res.Issues[tableType] = append(res.Issues[tableType], err.Error())
					slog.DebugContext(ctx, "discarding row", "table_type", tableType, "error", err)
					continue
				}
				key := dedupKey(rec.CallDate, rec.Amount, rec.CallType, nil, rec.Description)
				if _, dup := seen[key]; dup {
					duplicates++
					continue
				}
				seen[key] = struct{}{}
				res.Records.CapitalCalls = append(res.Records.CapitalCalls, rec)
				valid++
			}
		case tables.Distributions:
			seen := make(map[string]struct{})
			for _, row := range rows {
				rec, err := cleanDistribution(row)
				if err != nil {
					invalid++
					res.Issues[tableType] = append(res.Issues[tableType], err.Error())
					slog.DebugContext(ctx, "discarding row", "table_type", tableType, "error", err)
					continue
				}
				key := dedupKey(rec.DistributionDate, rec.Amount, rec.DistributionType, nil, rec.Description)
				if _, dup := seen[key]; dup {
					duplicates++
					continue
				}
				seen[key] = struct{}{}
				res.Records.Distributions = append(res.Records.Distributions, rec)
				valid++
			}
		case tables.Adjustments:
			seen := make(map[string]struct{})
			for _, row := range rows {
				rec, err := cleanAdjustment(row)
				if err != nil {
					invalid++
					res.Issues[tableType] = append(res.Issues[tableType], err.Error())
					slog.DebugContext(ctx, "discarding row", "table_type", tableType, "error", err)
					continue
				}
				key := dedupKey(rec.AdjustmentDate, rec.Amount, rec.AdjustmentType, rec.Category, rec.Description)
				if _, dup := seen[key]; dup {
					duplicates++
					continue
				}
				seen[key] = struct{}{}
				res.Records.Adjustments = append(res.Records.Adjustments, rec)
				valid++
			}
		}

		slog.InfoContext(ctx, "cleaned table rows",
			"table_type", tableType,
			"total", len(rows),
			"valid", valid,
			"invalid", invalid,
			"duplicates", duplicates,
		)
	}

	return res
}

func cleanCapitalCall(row tables.Row) (tables.CapitalCall, error) {
	date, ok := CoerceDate(row[tables.FieldCallDate])
	if !ok {
		return tables.CapitalCall{}, ErrInvalidCallDate
	}
	amount, ok := CoerceAmount(row[tables.FieldAmount], false)
	if !ok {
		return tables.CapitalCall{}, ErrInvalidAmount
	}
	if amount.IsZero() {
		return tables.CapitalCall{}, ErrZeroCapitalCall
	}
	return tables.CapitalCall{
		CallDate:    date,
		CallType:    NormalizeString(row[tables.FieldCallType]),
		Amount:      amount,
		Description: NormalizeString(row[tables.FieldDescription]),
	}, nil
}

func cleanDistribution(row tables.Row) (tables.Distribution, error) {
	date, ok := CoerceDate(row[tables.FieldDistributionDate])
	if !ok {
		return tables.Distribution{}, ErrInvalidDistributionDate
	}
	amount, ok := CoerceAmount(row[tables.FieldAmount], false)
	if !ok {
		return tables.Distribution{}, ErrInvalidAmount
	}
	if amount.IsZero() {
		return tables.Distribution{}, ErrZeroDistribution
	}
	return tables.Distribution{
		DistributionDate: date,
		DistributionType: NormalizeString(row[tables.FieldDistributionType]),
		Amount:           amount,
		IsRecallable:     CoerceBool(row[tables.FieldIsRecallable]),
		Description:      NormalizeString(row[tables.FieldDescription]),
	}, nil
}

// Adjustments may be negative or zero.
func cleanAdjustment(row tables.Row) (tables.Adjustment, error) {
	date, ok := CoerceDate(row[tables.FieldAdjustmentDate])
	if !ok {
		return tables.Adjustment{}, ErrInvalidAdjustmentDate
	}
	amount, ok := CoerceAmount(row[tables.FieldAmount], true)
	if !ok {
		return tables.Adjustment{}, ErrInvalidAmount
	}
	return tables.Adjustment{
		AdjustmentDate:           date,
		AdjustmentType:           NormalizeString(row[tables.FieldAdjustmentType]),
		Category:                 NormalizeString(row[tables.FieldCategory]),
		Amount:                   amount,
		IsContributionAdjustment: CoerceBool(row[tables.FieldIsContributionAdjustment]),
		Description:              NormalizeString(row[tables.FieldDescription]),
	}, nil
}

func dedupKey(date civil.Date, amount decimal.Decimal, typ, category, desc *string) string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return strings.Join([]string{date.String(), amount.StringFixed(2), deref(typ), deref(category), deref(desc)}, "\x1f")
}

// CoerceDate accepts civil.Date, time.Time or a string in any supported layout.
func CoerceDate(v any) (civil.Date, bool) {
	switch d := v.(type) {
	case civil.Date:
		return d, d.IsValid()
	case *civil.Date:
		if d == nil {
			return civil.Date{}, false
		}
		return *d, d.IsValid()
	case time.Time:
		if d.IsZero() {
			return civil.Date{}, false
		}
		return civil.DateOf(d), true
	case string:
		return tables.ParseDate(d)
	default:
		return civil.Date{}, false
	}
}

// CoerceAmount converts decimals, integers, floats and strings to a two-place
// decimal rounded half away from zero. Negative values fail unless allowNegative.
func CoerceAmount(v any, allowNegative bool) (decimal.Decimal, bool) {
	var amount decimal.Decimal
	switch a := v.(type) {
	case decimal.Decimal:
		amount = a
	case *decimal.Decimal:
		if a == nil {
			return decimal.Decimal{}, false
		}
		amount = *a
	case int:
		amount = decimal.NewFromInt(int64(a))
	case int32:
		amount = decimal.NewFromInt32(a)
	case int64:
		amount = decimal.NewFromInt(a)
	case float32:
		return CoerceAmount(float64(a), allowNegative)
	case float64:
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return decimal.Decimal{}, false
		}
		// Through the shortest string form so 0.1 stays 0.1.
		d, err := decimal.NewFromString(strconv.FormatFloat(a, 'f', -1, 64))
		if err != nil {
			return decimal.Decimal{}, false
		}
		amount = d
	case string:
		d, ok := tables.ParseAmount(a)
		if !ok {
			return decimal.Decimal{}, false
		}
		amount = d
	default:
		return decimal.Decimal{}, false
	}

	amount = amount.Round(2)
	if !allowNegative && amount.IsNegative() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// NormalizeString trims a value and returns nil when it is absent or blank.
func NormalizeString(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case *string:
		if x == nil {
			return nil
		}
		s = *x
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CoerceBool accepts booleans and their string forms. Other values use their
// zero-ness.
func CoerceBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case *bool:
		return b != nil && *b
	case string:
		return tables.ParseBool(b)
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case decimal.Decimal:
		return !b.IsZero()
	default:
		return true
	}
}
