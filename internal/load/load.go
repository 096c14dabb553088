// Package load writes transformed tables to the destination database
// through a driver.Writer, either appending or upserting on the business key.
package load

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/transform"
)

// Mode selects how rows are written.
type Mode string

const (
	ModeAppend Mode = "append"
	ModeUpsert Mode = "upsert"
)

// ParseMode parses a load mode; empty means append.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeUpsert:
		return ModeUpsert, nil
	}
	return "", fmt.Errorf("invalid load mode %q (use append or upsert)", s)
}

// Open resolves the configured driver and connects a writer.
func Open(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (driver.Writer, error) {
	d, err := driver.Get(cfg.Type)
	if err != nil {
		return nil, err
	}
	logging.Debug("Opening %s target %+v", d.Name(), cfg.Redacted())
	return d.NewWriter(cfg, opts)
}

// Loader writes transform tables into one destination table. It creates the
// table on first use.
type Loader struct {
	writer  driver.Writer
	table   *driver.Table
	mode    Mode
	key     string
	ensured bool
}

// New returns a loader. In upsert mode the table must declare a unique key.
func New(w driver.Writer, table *driver.Table, mode Mode) (*Loader, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	l := &Loader{writer: w, table: table, mode: mode}
	if mode == ModeUpsert {
		if len(table.UniqueKey) != 1 {
			return nil, fmt.Errorf("upsert mode needs exactly one unique key column on %s", table.FullName())
		}
		l.key = table.UniqueKey[0]
	}
	return l, nil
}

// Table returns the destination table description.
func (l *Loader) Table() *driver.Table {
	return l.table
}

// Load writes every row of t and returns the number of rows written. Columns
// of t that the destination does not declare are ignored; declared columns
// missing from t are written as NULL.
func (l *Loader) Load(ctx context.Context, t *transform.Table) (int64, error) {
	if t.Len() == 0 {
		return 0, nil
	}
	if !l.ensured {
		if err := l.writer.EnsureTable(ctx, l.table); err != nil {
			return 0, err
		}
		l.ensured = true
	}

	columns := l.table.ColumnNames()
	rows := l.rows(t, columns)

	var (
		n   int64
		err error
	)
	switch l.mode {
	case ModeUpsert:
		n, err = l.writer.UpsertBatch(ctx, driver.UpsertBatchOptions{
			Schema:     l.table.Schema,
			Table:      l.table.Name,
			Columns:    columns,
			KeyColumns: []string{l.key},
			Rows:       rows,
		})
	default:
		n, err = l.writer.WriteBatch(ctx, driver.WriteBatchOptions{
			Schema:  l.table.Schema,
			Table:   l.table.Name,
			Columns: columns,
			Rows:    rows,
		})
	}
	if err != nil {
		return 0, fmt.Errorf("loading %d rows into %s: %w", len(rows), l.table.FullName(), err)
	}
	logging.Debug("Loaded %d rows into %s (%s)", n, l.table.FullName(), l.mode)
	return n, nil
}

// Count returns the number of rows in the destination table.
func (l *Loader) Count(ctx context.Context) (int64, error) {
	return l.writer.RowCount(ctx, l.table.Schema, l.table.Name)
}

// rows projects t onto columns.
func (l *Loader) rows(t *transform.Table, columns []string) [][]any {
	src := make([]int, len(columns))
	for i, c := range columns {
		src[i] = t.ColumnIndex(c)
	}
	for _, c := range t.Columns {
		if !slices.Contains(columns, c) {
			logging.Debug("Column %s is not part of %s, skipping", c, l.table.FullName())
		}
	}

	out := make([][]any, t.Len())
	for r, row := range t.Rows {
		vals := make([]any, len(columns))
		for i, c := range columns {
			switch {
			case src[i] >= 0:
				vals[i] = row.Values[src[i]]
			case c == transform.PropertiesColumn && len(row.Extra) > 0:
				vals[i] = row.Extra
			}
		}
		out[r] = vals
	}
	return out
}
