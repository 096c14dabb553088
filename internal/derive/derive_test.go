package derive

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
}

func tableOf(columns []string, rows ...[]any) *transform.Table {
	t := &transform.Table{Columns: columns, Types: make([]string, len(columns))}
	for _, r := range rows {
		t.Rows = append(t.Rows, transform.Row{Values: r})
	}
	return t
}

func TestDepreciationRate(t *testing.T) {
	table := tableOf([]string{schema.DepreciationYears},
		[]any{int64(10)},
		[]any{int64(0)},
		[]any{nil},
		[]any{int64(-3)},
		[]any{int64(4)},
	)

	sum, err := (&Calculator{Inputs: DefaultInputs(), Now: fixedNow}).Apply(table)
	require.NoError(t, err)

	assert.Equal(t, []string{DepreciationRate}, sum.Added)
	assert.InDelta(t, 0.1, table.Value(0, DepreciationRate), 1e-12)
	assert.Nil(t, table.Value(1, DepreciationRate), "zero duration")
	assert.Nil(t, table.Value(2, DepreciationRate))
	assert.Nil(t, table.Value(3, DepreciationRate))
	assert.InDelta(t, 0.25, table.Value(4, DepreciationRate), 1e-12)
	assert.Contains(t, sum.Skipped, AcquisitionYear)
	assert.Contains(t, sum.Skipped, RemainingValuePct)
}

func TestDateParts(t *testing.T) {
	table := tableOf([]string{schema.AcquisitionDate},
		[]any{civil.Date{Year: 2020, Month: time.January, Day: 1}},
		[]any{civil.Date{Year: 2019, Month: time.November, Day: 30}},
		[]any{nil},
	)

	_, err := (&Calculator{Inputs: DefaultInputs(), Now: fixedNow}).Apply(table)
	require.NoError(t, err)

	assert.Equal(t, int64(2020), table.Value(0, AcquisitionYear))
	assert.Equal(t, int64(1), table.Value(0, AcquisitionMonth))
	assert.Equal(t, int64(1), table.Value(0, AcquisitionDay))
	assert.Equal(t, int64(1), table.Value(0, AcquisitionQuarter))
	// 1461 days / 365.25
	assert.Equal(t, 4.0, table.Value(0, AssetAge))

	assert.Equal(t, int64(11), table.Value(1, AcquisitionMonth))
	assert.Equal(t, int64(4), table.Value(1, AcquisitionQuarter))
	// 1493 days / 365.25 = 4.0876...
	assert.Equal(t, 4.09, table.Value(1, AssetAge))

	for _, col := range []string{AcquisitionYear, AcquisitionMonth, AcquisitionDay, AcquisitionQuarter, AssetAge} {
		assert.Nil(t, table.Value(2, col), col)
	}
}

func TestTotalDepreciationTreatsNullAsZero(t *testing.T) {
	table := tableOf([]string{schema.PriorDepreciation, schema.PeriodDepreciation},
		[]any{1000.5, 200.25},
		[]any{nil, 50.0},
		[]any{nil, nil},
	)

	_, err := New().Apply(table)
	require.NoError(t, err)

	assert.InDelta(t, 1200.75, table.Value(0, TotalDepreciation), 1e-9)
	assert.InDelta(t, 50.0, table.Value(1, TotalDepreciation), 1e-9)
	assert.Equal(t, 0.0, table.Value(2, TotalDepreciation))
}

func TestTotalDepreciationWithOneInputColumn(t *testing.T) {
	table := tableOf([]string{schema.PeriodDepreciation}, []any{75.0})

	sum, err := New().Apply(table)
	require.NoError(t, err)

	assert.Contains(t, sum.Added, TotalDepreciation)
	assert.Equal(t, 75.0, table.Value(0, TotalDepreciation))
}

func TestRemainingValuePct(t *testing.T) {
	table := tableOf([]string{schema.AcquisitionValue, schema.ClosingNetBookValue},
		[]any{2000.0, 1500.0},
		[]any{0.0, 100.0},
		[]any{-10.0, 5.0},
		[]any{3.0, 1.0},
		[]any{1000.0, nil},
	)

	_, err := New().Apply(table)
	require.NoError(t, err)

	assert.Equal(t, 75.0, table.Value(0, RemainingValuePct))
	assert.Nil(t, table.Value(1, RemainingValuePct), "zero acquisition value")
	assert.Nil(t, table.Value(2, RemainingValuePct))
	assert.Equal(t, 33.33, table.Value(3, RemainingValuePct))
	assert.Nil(t, table.Value(4, RemainingValuePct))
}

func TestRound2HalvesAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, -0.13, round2(-0.125))
	assert.Equal(t, 2.0, round2(1.999))
}

func TestApplyOnTransformedBatch(t *testing.T) {
	tr, err := transform.New(transform.Options{Schema: schema.Default(), KeyColumn: schema.AssetID})
	require.NoError(t, err)

	table, report := tr.Batch([]any{map[string]any{"fields": map[string]any{
		"ndeg_immobilisation":  "1001",
		"valeur_d_acquisition": "2000,50",
		"duree_amort":          "10",
		"date_d_acquisition":   "2020-01-01",
	}}})
	require.Equal(t, 1, report.Converted)

	_, err = (&Calculator{Inputs: DefaultInputs(), Now: fixedNow}).Apply(table)
	require.NoError(t, err)

	assert.Equal(t, "1001", table.Value(0, schema.AssetID))
	assert.InDelta(t, 2000.50, table.Value(0, schema.AcquisitionValue), 1e-9)
	assert.InDelta(t, 0.1, table.Value(0, DepreciationRate), 1e-12)
	assert.Equal(t, int64(2020), table.Value(0, AcquisitionYear))
	assert.Nil(t, table.Value(0, RemainingValuePct))
	assert.Equal(t, 0.0, table.Value(0, TotalDepreciation))
	assert.Equal(t, len(schema.Default().Columns)+8, len(table.Columns))
}
