package load

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/derive"
	"github.com/johndauphine/immo-etl/internal/driver"
	_ "github.com/johndauphine/immo-etl/internal/driver/sqlite"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) driver.Writer {
	t.Helper()
	w, err := Open(&dbconfig.TargetConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "immo.db"),
	}, driver.WriterOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func transformed(t *testing.T, records ...any) *transform.Table {
	t.Helper()
	tr, err := transform.New(transform.Options{
		Schema:    schema.Default(),
		KeyColumn: schema.AssetID,
	})
	require.NoError(t, err)
	table, report := tr.Batch(records)
	require.Equal(t, 0, report.Errors)

	calc := derive.New()
	calc.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = calc.Apply(table)
	require.NoError(t, err)
	return table
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAppend, "append": ModeAppend, " Upsert ": ModeUpsert} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("replace")
	assert.Error(t, err)
}

func TestBuildTable(t *testing.T) {
	tbl := BuildTable(schema.Default(), TableSpec{KeyColumn: schema.AssetID, Unique: true, Properties: true})
	require.NoError(t, tbl.Validate())

	assert.Equal(t, DefaultTable, tbl.Name)
	assert.Equal(t, IDColumn, tbl.Columns[0].Name)
	assert.True(t, tbl.Columns[0].AutoIncrement)
	assert.Equal(t, schema.AssetID, tbl.Columns[1].Name)
	assert.False(t, tbl.Columns[1].Nullable)
	assert.Equal(t, 64, tbl.Columns[1].Size)
	assert.Equal(t, FetchedAtColumn, tbl.Columns[len(tbl.Columns)-1].Name)
	assert.Equal(t, []string{schema.AssetID}, tbl.UniqueKey)

	names := tbl.ColumnNames()
	assert.Contains(t, names, derive.RemainingValuePct)
	assert.Contains(t, names, transform.PropertiesColumn)
	assert.NotContains(t, names, IDColumn)
	assert.NotContains(t, names, FetchedAtColumn)

	var dur driver.Column
	for _, c := range tbl.Columns {
		if c.Name == schema.DepreciationYears {
			dur = c
		}
	}
	assert.Equal(t, "integer", dur.Type, "int alias is stored as integer")

	plain := BuildTable(schema.Default(), TableSpec{Name: "immo", KeyColumn: schema.AssetID})
	assert.Empty(t, plain.UniqueKey)
	assert.NotContains(t, plain.ColumnNames(), transform.PropertiesColumn)
}

func TestLoadAppend(t *testing.T) {
	ctx := context.Background()
	w := openSQLite(t)
	tbl := BuildTable(schema.Default(), TableSpec{KeyColumn: schema.AssetID, Properties: true})
	l, err := New(w, tbl, ModeAppend)
	require.NoError(t, err)

	table := transformed(t,
		map[string]any{"ndeg_immobilisation": "A1", "date_d_acquisition": "2020-01-01", "valeur_d_acquisition": "1000", "source": "api"},
		map[string]any{"ndeg_immobilisation": "A1", "valeur_d_acquisition": "5,5"},
		map[string]any{"designation_des_ensembles": "  Mobilier   urbain "},
	)

	n, err := l.Load(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Append keeps duplicates.
	n, err = l.Load(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
}

func TestLoadUpsert(t *testing.T) {
	ctx := context.Background()
	w := openSQLite(t)
	tbl := BuildTable(schema.Default(), TableSpec{KeyColumn: schema.AssetID, Unique: true})
	l, err := New(w, tbl, ModeUpsert)
	require.NoError(t, err)

	first := transformed(t,
		map[string]any{"ndeg_immobilisation": "A1", "valeur_d_acquisition": "100"},
		map[string]any{"ndeg_immobilisation": "A2", "valeur_d_acquisition": "200"},
	)
	_, err = l.Load(ctx, first)
	require.NoError(t, err)

	second := transformed(t,
		map[string]any{"ndeg_immobilisation": "A2", "valeur_d_acquisition": "250"},
		map[string]any{"ndeg_immobilisation": "A3", "valeur_d_acquisition": "300"},
		map[string]any{"ndeg_immobilisation": "A3", "valeur_d_acquisition": "350"},
	)
	n, err := l.Load(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "duplicate keys of a batch are collapsed")

	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestNewUpsertNeedsUniqueKey(t *testing.T) {
	tbl := BuildTable(schema.Default(), TableSpec{KeyColumn: schema.AssetID})
	_, err := New(nil, tbl, ModeUpsert)
	assert.Error(t, err)
}

func TestLoadEmptyTableIsNoop(t *testing.T) {
	tbl := BuildTable(schema.Default(), TableSpec{KeyColumn: schema.AssetID})
	// A nil writer would panic if it were touched.
	l, err := New(nil, tbl, ModeAppend)
	require.NoError(t, err)
	n, err := l.Load(context.Background(), &transform.Table{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRowsProjection(t *testing.T) {
	tbl := &driver.Table{
		Name: "t",
		Columns: []driver.Column{
			{Name: "k", Type: "string"},
			{Name: "missing", Type: "string", Nullable: true},
			{Name: transform.PropertiesColumn, Type: "json", Nullable: true},
		},
	}
	l, err := New(nil, tbl, ModeAppend)
	require.NoError(t, err)

	src := &transform.Table{
		Columns: []string{"k", "ignored"},
		Types:   []string{"string", "string"},
		Rows: []transform.Row{
			{Values: []any{"a", "x"}, Extra: map[string]any{"e": 1}},
			{Values: []any{"b", "y"}},
		},
	}
	rows := l.rows(src, tbl.ColumnNames())
	assert.Equal(t, [][]any{
		{"a", nil, map[string]any{"e": 1}},
		{"b", nil, nil},
	}, rows)
}
