package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

// Dialect implements driver.Dialect for PostgreSQL.
type Dialect struct{}

func (d *Dialect) DBType() string { return "postgres" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN renders a postgres:// URL understood by pgxpool.ParseConfig.
func (d *Dialect) BuildDSN(cfg *dbconfig.TargetConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func (d *Dialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d *Dialect) CreateTableSQL(t *driver.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var defs []string
	if c, ok := driver.AutoIncrementColumn(t); ok {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY")
	}
	cols, err := driver.ColumnDefinitions(d, t)
	if err != nil {
		return "", err
	}
	defs = append(defs, cols...)
	for _, c := range driver.DefaultNowColumns(t) {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" timestamptz NOT NULL DEFAULT now()")
	}
	if len(t.UniqueKey) > 0 {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			d.QuoteIdentifier("uq_"+t.Name), driver.QuoteColumns(d, t.UniqueKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.QualifyTable(t.Schema, t.Name), strings.Join(defs, ",\n  ")), nil
}

// UpsertSQL moves rows from a staging table into the target, updating only
// rows whose non-key values actually changed.
func (d *Dialect) UpsertSQL(schema, table, staging string, columns, keys []string) string {
	var sb strings.Builder
	colList := driver.QuoteColumns(d, columns)

	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QualifyTable(schema, table))
	sb.WriteString(" AS t (")
	sb.WriteString(colList)
	sb.WriteString(") SELECT ")
	sb.WriteString(colList)
	sb.WriteString(" FROM ")
	sb.WriteString(d.QuoteIdentifier(staging))
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(driver.QuoteColumns(d, keys))

	update := driver.NonKeyColumns(columns, keys)
	if len(update) == 0 {
		sb.WriteString(") DO NOTHING")
		return sb.String()
	}

	sets := make([]string, len(update))
	current := make([]string, len(update))
	excluded := make([]string, len(update))
	for i, c := range update {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		current[i] = "t." + q
		excluded[i] = "EXCLUDED." + q
	}
	sb.WriteString(") DO UPDATE SET ")
	sb.WriteString(strings.Join(sets, ", "))
	sb.WriteString(" WHERE (")
	sb.WriteString(strings.Join(current, ", "))
	sb.WriteString(") IS DISTINCT FROM (")
	sb.WriteString(strings.Join(excluded, ", "))
	sb.WriteString(")")
	return sb.String()
}
