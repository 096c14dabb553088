package driver

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/johndauphine/immo-etl/internal/typemap"
)

// DefaultRowsPerBatch is the number of rows per multi-row statement.
const DefaultRowsPerBatch = 1000

// RowsPerStatement bounds rowsPerBatch so that a statement with ncols columns
// stays under maxParams bind parameters (0 = unlimited).
func RowsPerStatement(rowsPerBatch, ncols, maxParams int) int {
	if rowsPerBatch <= 0 {
		rowsPerBatch = DefaultRowsPerBatch
	}
	if maxParams > 0 && ncols > 0 {
		if limit := maxParams / ncols; limit < rowsPerBatch {
			rowsPerBatch = max(limit, 1)
		}
	}
	return rowsPerBatch
}

// Chunks splits rows into slices of at most size rows.
func Chunks(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = DefaultRowsPerBatch
	}
	var out [][][]any
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// ConvertValue translates a transformed cell to a value every database/sql
// driver accepts: NaN and infinities become NULL, dates become midnight UTC
// timestamps, maps and slices become JSON text.
func ConvertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case civil.Date:
		return val.In(time.UTC)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	case json.Number:
		return val.String()
	default:
		return v
	}
}

// ConvertRow applies ConvertValue to every value of a row, in a new slice.
func ConvertRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = ConvertValue(v)
	}
	return out
}

// DedupeByKey keeps the last occurrence of every key, in the order of those
// last occurrences. Rows whose key is NULL are kept as is. A single
// INSERT ... ON CONFLICT cannot touch the same row twice, so upsert batches
// are collapsed first.
func DedupeByKey(columns, keyColumns []string, rows [][]any) [][]any {
	idx := make([]int, 0, len(keyColumns))
	for _, k := range keyColumns {
		for i, c := range columns {
			if c == k {
				idx = append(idx, i)
				break
			}
		}
	}
	if len(idx) == 0 {
		return rows
	}

	keyOf := func(row []any) (string, bool) {
		parts := make([]string, len(idx))
		for j, i := range idx {
			if row[i] == nil {
				return "", false
			}
			parts[j] = fmt.Sprint(row[i])
		}
		return strings.Join(parts, "\x00"), true
	}

	last := make(map[string]int, len(rows))
	for i, row := range rows {
		if k, ok := keyOf(row); ok {
			last[k] = i
		}
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([][]any, 0, len(last))
	for i, row := range rows {
		if k, ok := keyOf(row); ok && last[k] != i {
			continue
		}
		out = append(out, row)
	}
	return out
}

// InsertSQL builds "INSERT INTO t (cols) VALUES (...), (...)" for nrows rows
// using the dialect's placeholders.
func InsertSQL(d Dialect, schema, table string, columns []string, nrows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QualifyTable(schema, table))
	sb.WriteString(" (")
	sb.WriteString(QuoteColumns(d, columns))
	sb.WriteString(") VALUES ")
	n := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// QuoteColumns quotes and joins column names.
func QuoteColumns(d Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// NonKeyColumns returns columns minus keys, in order.
func NonKeyColumns(columns, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// ColumnDefinitions renders "name TYPE [NOT NULL]" for every column that is
// not auto increment or defaulted; engines add those themselves.
func ColumnDefinitions(d Dialect, t *Table) ([]string, error) {
	var defs []string
	for _, c := range t.Columns {
		if c.AutoIncrement || c.DefaultNow {
			continue
		}
		typ, err := typemap.SQLType(d.DBType(), c.Spec())
		if err != nil {
			return nil, err
		}
		def := d.QuoteIdentifier(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// AutoIncrementColumn returns the table's auto increment column, if any.
func AutoIncrementColumn(t *Table) (Column, bool) {
	for _, c := range t.Columns {
		if c.AutoIncrement {
			return c, true
		}
	}
	return Column{}, false
}

// DefaultNowColumns returns the server-timestamped columns.
func DefaultNowColumns(t *Table) []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.DefaultNow {
			out = append(out, c)
		}
	}
	return out
}
