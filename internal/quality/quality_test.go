package quality

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssess(t *testing.T) {
	d := civil.Date{Year: 2020, Month: time.March, Day: 2}
	table := &transform.Table{
		Columns: []string{schema.AssetID, schema.AcquisitionDate, schema.AcquisitionValue},
		Rows: []transform.Row{
			{Values: []any{"A", d, 10.0}},
			{Values: []any{"B", nil, 10.0}},
			{Values: []any{"A", d, nil}},
			{Values: []any{"C", d, 5.5}},
		},
	}
	before := append([]string(nil), table.Columns...)

	a := Assess(table, schema.AssetID, DefaultCriticalFields)

	require.Len(t, a.Rows, 4)
	assert.Equal(t, Flags{Complete: true, Duplicate: true}, a.Rows[0])
	assert.Equal(t, Flags{Complete: false, Duplicate: false}, a.Rows[1])
	assert.Equal(t, Flags{Complete: false, Duplicate: true}, a.Rows[2])
	assert.Equal(t, Flags{Complete: true, Duplicate: false}, a.Rows[3])
	assert.Equal(t, []string{"A"}, a.DuplicateKeys)
	assert.Equal(t, before, table.Columns, "flags must not be added to the table")

	s := a.Summary()
	assert.Equal(t, Summary{Rows: 4, Complete: 2, Incomplete: 2, DuplicateRows: 2, DuplicateKeys: 1}, s)
}

func TestAssessMissingCriticalColumn(t *testing.T) {
	table := &transform.Table{
		Columns: []string{schema.AssetID},
		Rows:    []transform.Row{{Values: []any{"A"}}},
	}

	a := Assess(table, schema.AssetID, DefaultCriticalFields)
	assert.False(t, a.Rows[0].Complete)
}

func TestAssessWithoutKeyColumn(t *testing.T) {
	table := &transform.Table{
		Columns: []string{"x"},
		Rows:    []transform.Row{{Values: []any{1}}, {Values: []any{1}}},
	}

	a := Assess(table, schema.AssetID, []string{"x"})
	assert.Equal(t, Summary{Rows: 2, Complete: 2}, a.Summary())
}

func TestSummaryAdd(t *testing.T) {
	total := Summary{}
	total.Add(Summary{Rows: 3, Complete: 2, Incomplete: 1, DuplicateRows: 2, DuplicateKeys: 1})
	total.Add(Summary{Rows: 1, Complete: 1})

	assert.Equal(t, Summary{Rows: 4, Complete: 3, Incomplete: 1, DuplicateRows: 2, DuplicateKeys: 1}, total)
}
