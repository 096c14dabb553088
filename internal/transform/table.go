package transform

import (
	"fmt"
)

// Row is one converted record. Values line up with Table.Columns.
type Row struct {
	Values []any
	// Extra holds the record's fields that are not part of the schema. It is
	// nil when extras are discarded or the record had none.
	Extra map[string]any
}

// Table is the typed output of a batch: rows in input order, columns in
// schema order. Derived columns are appended after the schema columns.
type Table struct {
	Columns []string
	// Types holds the semantic type of each column.
	Types []string
	Rows  []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the cell at row i of the named column, nil when the column
// does not exist.
func (t *Table) Value(i int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	return t.Rows[i].Values[idx]
}

// SetColumn replaces the values of an existing column or appends a new one.
// values must have one entry per row.
func (t *Table) SetColumn(name, typ string, values []any) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(t.Rows))
	}
	idx := t.ColumnIndex(name)
	if idx < 0 {
		t.Columns = append(t.Columns, name)
		t.Types = append(t.Types, typ)
		for i := range t.Rows {
			t.Rows[i].Values = append(t.Rows[i].Values, values[i])
		}
		return nil
	}
	t.Types[idx] = typ
	for i := range t.Rows {
		t.Rows[i].Values[idx] = values[i]
	}
	return nil
}

// Records renders the table as one map per row, with extras under
// "properties" when present.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]any, len(t.Columns)+1)
		for j, c := range t.Columns {
			m[c] = row.Values[j]
		}
		if len(row.Extra) > 0 {
			m[PropertiesColumn] = row.Extra
		}
		out[i] = m
	}
	return out
}
