package mssql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

// Dialect implements driver.Dialect for SQL Server.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mssql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN renders a sqlserver:// URL. Encryption is on unless explicitly
// disabled.
func (d *Dialect) BuildDSN(cfg *dbconfig.TargetConfig) string {
	q := url.Values{}
	q.Set("database", cfg.Database)
	encrypt := true
	if cfg.Encrypt != nil {
		encrypt = *cfg.Encrypt
	}
	q.Set("encrypt", strconv.FormatBool(encrypt))
	if cfg.TrustServerCert {
		q.Set("TrustServerCertificate", "true")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (d *Dialect) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

func (d *Dialect) CreateTableSQL(t *driver.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var defs []string
	if c, ok := driver.AutoIncrementColumn(t); ok {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY")
	}
	cols, err := driver.ColumnDefinitions(d, t)
	if err != nil {
		return "", err
	}
	defs = append(defs, cols...)
	for _, c := range driver.DefaultNowColumns(t) {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()")
	}
	if len(t.UniqueKey) > 0 {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			d.QuoteIdentifier("uq_"+t.Name), driver.QuoteColumns(d, t.UniqueKey)))
	}

	name := d.QualifyTable(t.Schema, t.Name)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n  %s\n)",
		strings.ReplaceAll(name, "'", "''"), name, strings.Join(defs, ",\n  ")), nil
}

// MergeSQL builds a MERGE statement reading nrows parameterized rows.
func (d *Dialect) MergeSQL(schema, table string, columns, keys []string, nrows int) string {
	var sb strings.Builder
	colList := driver.QuoteColumns(d, columns)

	sb.WriteString("MERGE INTO ")
	sb.WriteString(d.QualifyTable(schema, table))
	sb.WriteString(" WITH (HOLDLOCK) AS target USING (VALUES ")
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
	sb.WriteString(") AS source (")
	sb.WriteString(colList)
	sb.WriteString(") ON ")

	on := make([]string, len(keys))
	for i, k := range keys {
		q := d.QuoteIdentifier(k)
		on[i] = fmt.Sprintf("target.%s = source.%s", q, q)
	}
	sb.WriteString(strings.Join(on, " AND "))

	if update := driver.NonKeyColumns(columns, keys); len(update) > 0 {
		sets := make([]string, len(update))
		for i, c := range update {
			q := d.QuoteIdentifier(c)
			sets[i] = fmt.Sprintf("target.%s = source.%s", q, q)
		}
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		sb.WriteString(strings.Join(sets, ", "))
	}

	src := make([]string, len(columns))
	for i, c := range columns {
		src[i] = "source." + d.QuoteIdentifier(c)
	}
	sb.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	sb.WriteString(colList)
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(src, ", "))
	sb.WriteString(");")
	return sb.String()
}
