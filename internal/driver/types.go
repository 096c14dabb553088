package driver

import (
	"fmt"

	"github.com/johndauphine/immo-etl/internal/typemap"
)

// Table describes a destination table.
type Table struct {
	Schema  string   `json:"schema,omitempty"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	// UniqueKey columns get a unique constraint (upsert mode).
	UniqueKey []string `json:"unique_key,omitempty"`
}

// FullName returns the schema-qualified name for logging.
func (t *Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns the names of the columns that receive values, i.e.
// every column except auto increment and server-defaulted ones.
func (t *Table) ColumnNames() []string {
	var names []string
	for _, c := range t.Columns {
		if c.AutoIncrement || c.DefaultNow {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// Validate checks every identifier of the table.
func (t *Table) Validate() error {
	if err := ValidateIdentifier(t.Name); err != nil {
		return fmt.Errorf("table name: %w", err)
	}
	if t.Schema != "" {
		if err := ValidateIdentifier(t.Schema); err != nil {
			return fmt.Errorf("schema name: %w", err)
		}
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if seen[c.Name] {
			return fmt.Errorf("column %s declared twice", c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range t.UniqueKey {
		if !seen[k] {
			return fmt.Errorf("unique key column %s is not a table column", k)
		}
	}
	return nil
}

// Column represents a destination column.
type Column struct {
	Name string `json:"name"`
	// Type is a semantic type from the typemap package.
	Type          string `json:"type"`
	Size          int    `json:"size,omitempty"`
	Precision     int    `json:"precision,omitempty"`
	Scale         int    `json:"scale,omitempty"`
	Nullable      bool   `json:"nullable"`
	AutoIncrement bool   `json:"auto_increment,omitempty"` // surrogate primary key
	DefaultNow    bool   `json:"default_now,omitempty"`    // server-side load timestamp
}

// Spec returns the engine independent storage description.
func (c Column) Spec() typemap.Spec {
	return typemap.Spec{Type: c.Type, Size: c.Size, Precision: c.Precision, Scale: c.Scale}
}

// ValidateIdentifier checks that a table or column name is safe to quote and
// use in generated SQL. It allows letters, digits, underscore and $, must
// start with a letter or underscore, and is limited to 64 characters (the
// MySQL maximum).
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(name) > 64 {
		return fmt.Errorf("identifier too long: %d characters (max 64)", len(name))
	}

	// Check first character: must be letter or underscore
	first := rune(name[0])
	if !isValidIdentifierStart(first) {
		return fmt.Errorf("identifier must start with letter or underscore: %q", name)
	}

	for i, r := range name {
		if i == 0 {
			continue
		}
		if !isValidIdentifierChar(r) {
			return fmt.Errorf("identifier contains invalid character %q at position %d: %q", r, i, name)
		}
	}

	return nil
}

func isValidIdentifierStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidIdentifierChar(r rune) bool {
	return isValidIdentifierStart(r) || (r >= '0' && r <= '9') || r == '$'
}
