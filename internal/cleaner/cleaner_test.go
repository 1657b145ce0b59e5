package cleaner_test

import (
	"context"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/internal/cleaner"
	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
)

func TestClean_ZeroAmountPolicy(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.CapitalCalls: {
			{tables.FieldCallDate: "2023-01-15", tables.FieldAmount: "0.00"},
		},
		tables.Adjustments: {
			{tables.FieldAdjustmentDate: "2023-01-15", tables.FieldAmount: "0.00", tables.FieldCategory: "Reclass"},
		},
	})

	assert.Empty(t, res.Records.CapitalCalls)
	require.Len(t, res.Issues[tables.CapitalCalls], 1)
	assert.Contains(t, res.Issues[tables.CapitalCalls][0], "cannot be zero")

	require.Len(t, res.Records.Adjustments, 1)
	assert.True(t, res.Records.Adjustments[0].Amount.IsZero())
	assert.Empty(t, res.Issues[tables.Adjustments])
}

func TestClean_NegativeAdjustment(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.Adjustments: {
			{tables.FieldAdjustmentDate: civil.Date{Year: 2023, Month: 5, Day: 1}, tables.FieldAmount: "-$100.00"},
		},
	})

	require.Len(t, res.Records.Adjustments, 1)
	assert.Equal(t, "-100.00", res.Records.Adjustments[0].Amount.StringFixed(2))
	assert.Empty(t, res.Issues[tables.Adjustments])
}

func TestClean_RejectionReasons(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.CapitalCalls: {
			{tables.FieldCallDate: "nope", tables.FieldAmount: "10"},
			{tables.FieldCallDate: "2023-01-01", tables.FieldAmount: "-10"},
			{tables.FieldCallDate: "2023-01-01"},
		},
		tables.Distributions: {
			{tables.FieldDistributionDate: nil, tables.FieldAmount: "10"},
			{tables.FieldDistributionDate: "2023-01-01", tables.FieldAmount: 0},
		},
		tables.Adjustments: {
			{tables.FieldAmount: "10"},
			{tables.FieldAdjustmentDate: "2023-01-01", tables.FieldAmount: "n/a"},
		},
	})

	assert.Equal(t, []string{
		"missing or invalid call_date",
		"missing or invalid amount",
		"missing or invalid amount",
	}, res.Issues[tables.CapitalCalls])
	assert.Equal(t, []string{
		"missing or invalid distribution_date",
		"distribution amount cannot be zero",
	}, res.Issues[tables.Distributions])
	assert.Equal(t, []string{
		"missing or invalid adjustment_date",
		"missing or invalid amount",
	}, res.Issues[tables.Adjustments])
}

func TestClean_Deduplication(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.CapitalCalls: {
			{tables.FieldCallDate: "2023-01-15", tables.FieldAmount: "$1,000.00", tables.FieldCallType: " Regular ", tables.FieldDescription: "Initial", tables.FieldPageNumber: 1},
			{tables.FieldCallDate: civil.Date{Year: 2023, Month: 1, Day: 15}, tables.FieldAmount: 1000, tables.FieldCallType: "Regular", tables.FieldDescription: "Initial ", tables.FieldPageNumber: 7},
			{tables.FieldCallDate: "2023-01-15", tables.FieldAmount: "1000.001", tables.FieldCallType: "Regular", tables.FieldDescription: "Initial"},
			{tables.FieldCallDate: "2023-01-15", tables.FieldAmount: "1000", tables.FieldCallType: "Regular", tables.FieldDescription: "Follow-on"},
		},
	})

	require.Len(t, res.Records.CapitalCalls, 2)
	assert.Equal(t, "Initial", *res.Records.CapitalCalls[0].Description)
	assert.Equal(t, "Follow-on", *res.Records.CapitalCalls[1].Description)
	assert.Empty(t, res.Issues[tables.CapitalCalls], "duplicates are not validation issues")
}

func TestClean_AdjustmentDedupIncludesCategory(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.Adjustments: {
			{tables.FieldAdjustmentDate: "2023-01-15", tables.FieldAmount: "5", tables.FieldCategory: "Fee"},
			{tables.FieldAdjustmentDate: "2023-01-15", tables.FieldAmount: "5", tables.FieldCategory: "Expense"},
			{tables.FieldAdjustmentDate: "2023-01-15", tables.FieldAmount: "5.00", tables.FieldCategory: "Fee"},
		},
	})
	assert.Len(t, res.Records.Adjustments, 2)
}

func TestClean_DistributionRecallable(t *testing.T) {
	c := cleaner.New()
	res := c.Clean(context.Background(), map[tables.TableType][]tables.Row{
		tables.Distributions: {
			{tables.FieldDistributionDate: "2023-01-01", tables.FieldAmount: "1", tables.FieldIsRecallable: true},
			{tables.FieldDistributionDate: "2023-01-02", tables.FieldAmount: "1", tables.FieldIsRecallable: "Yes"},
			{tables.FieldDistributionDate: "2023-01-03", tables.FieldAmount: "1", tables.FieldIsRecallable: "no"},
			{tables.FieldDistributionDate: "2023-01-04", tables.FieldAmount: "1"},
		},
	})

	require.Len(t, res.Records.Distributions, 4)
	assert.True(t, res.Records.Distributions[0].IsRecallable)
	assert.True(t, res.Records.Distributions[1].IsRecallable)
	assert.False(t, res.Records.Distributions[2].IsRecallable)
	assert.False(t, res.Records.Distributions[3].IsRecallable)
}

func TestCoerceAmount(t *testing.T) {
	tests := []struct {
		name          string
		input         any
		allowNegative bool
		want          string
		ok            bool
	}{
		{"decimal rounds half up", decimal.RequireFromString("10.005"), false, "10.01", true},
		{"negative decimal rounds away from zero", decimal.RequireFromString("-10.005"), true, "-10.01", true},
		{"int", 42, false, "42.00", true},
		{"int64", int64(7), false, "7.00", true},
		{"float", 0.1, false, "0.10", true},
		{"string", "$1,234.565", false, "1234.57", true},
		{"negative rejected", "-5", false, "", false},
		{"negative allowed", "(5)", true, "-5.00", true},
		{"nan", math.NaN(), true, "", false},
		{"inf", math.Inf(1), true, "", false},
		{"nil", nil, true, "", false},
		{"unsupported", []int{1}, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cleaner.CoerceAmount(tt.input, tt.allowNegative)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.StringFixed(2))
			}
		})
	}
}

func TestCoerceDate(t *testing.T) {
	d, ok := cleaner.CoerceDate(time.Date(2023, 4, 5, 13, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2023, Month: 4, Day: 5}, d)

	_, ok = cleaner.CoerceDate(time.Time{})
	assert.False(t, ok)

	_, ok = cleaner.CoerceDate(20230405)
	assert.False(t, ok)
}

func TestNormalizeStringAndBool(t *testing.T) {
	assert.Nil(t, cleaner.NormalizeString("   "))
	assert.Nil(t, cleaner.NormalizeString(nil))
	assert.Equal(t, "x", *cleaner.NormalizeString(" x "))
	assert.Equal(t, "12", *cleaner.NormalizeString(12))

	assert.True(t, cleaner.CoerceBool("y"))
	assert.True(t, cleaner.CoerceBool(1))
	assert.False(t, cleaner.CoerceBool(0))
	assert.True(t, cleaner.CoerceBool(struct{}{}))
}
