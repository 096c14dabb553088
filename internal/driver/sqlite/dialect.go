package sqlite

import (
	"fmt"
	"strings"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

// Dialect implements driver.Dialect for SQLite.
type Dialect struct{}

func (d *Dialect) DBType() string { return "sqlite" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable treats schema as an attached database name.
func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN returns the database file path, falling back to the database
// name and then to an in-memory database.
func (d *Dialect) BuildDSN(cfg *dbconfig.TargetConfig) string {
	switch {
	case cfg.Path != "":
		return cfg.Path
	case cfg.Database != "":
		return cfg.Database
	default:
		return ":memory:"
	}
}

func (d *Dialect) Placeholder(_ int) string {
	return "?"
}

func (d *Dialect) CreateTableSQL(t *driver.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var defs []string
	if c, ok := driver.AutoIncrementColumn(t); ok {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	cols, err := driver.ColumnDefinitions(d, t)
	if err != nil {
		return "", err
	}
	defs = append(defs, cols...)
	for _, c := range driver.DefaultNowColumns(t) {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP")
	}
	if len(t.UniqueKey) > 0 {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			d.QuoteIdentifier("uq_"+t.Name), driver.QuoteColumns(d, t.UniqueKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.QualifyTable(t.Schema, t.Name), strings.Join(defs, ",\n  ")), nil
}

// UpsertSQL builds a multi-row INSERT ... ON CONFLICT DO UPDATE.
func (d *Dialect) UpsertSQL(schema, table string, columns, keys []string, nrows int) string {
	insert := driver.InsertSQL(d, schema, table, columns, nrows)
	conflict := " ON CONFLICT (" + driver.QuoteColumns(d, keys) + ")"
	update := driver.NonKeyColumns(columns, keys)
	if len(update) == 0 {
		return insert + conflict + " DO NOTHING"
	}
	sets := make([]string, len(update))
	for i, c := range update {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	return insert + conflict + " DO UPDATE SET " + strings.Join(sets, ", ")
}
