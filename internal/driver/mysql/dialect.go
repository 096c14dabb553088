package mysql

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

// Dialect implements driver.Dialect for MySQL/MariaDB.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mysql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Dialect) QualifyTable(schema, table string) string {
	// MySQL uses database.table, but schema is often empty (database is in DSN)
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN renders a go-sql-driver DSN. Dates are parsed into time.Time in
// UTC and parameters are interpolated client side so that multi-row
// statements cost a single round trip.
func (d *Dialect) BuildDSN(cfg *dbconfig.TargetConfig) string {
	c := gomysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.InterpolateParams = true
	c.TLSConfig = tlsMode(cfg.SSLMode)

	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	c.Params = map[string]string{"charset": charset}

	return c.FormatDSN()
}

// tlsMode maps PostgreSQL style ssl modes to the driver's tls parameter.
func tlsMode(sslMode string) string {
	switch strings.ToLower(sslMode) {
	case "disable", "disabled", "false":
		return "false"
	case "require", "required", "true", "verify-full", "verify_full", "verify-identity", "verify_identity":
		return "true"
	case "verify-ca", "verify_ca":
		return "skip-verify"
	default:
		return "preferred"
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
	var pk string
	if c, ok := driver.AutoIncrementColumn(t); ok {
		pk = d.QuoteIdentifier(c.Name)
		defs = append(defs, pk+" BIGINT NOT NULL AUTO_INCREMENT")
	}
	cols, err := driver.ColumnDefinitions(d, t)
	if err != nil {
		return "", err
	}
	defs = append(defs, cols...)
	for _, c := range driver.DefaultNowColumns(t) {
		defs = append(defs, d.QuoteIdentifier(c.Name)+" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP")
	}
	if pk != "" {
		defs = append(defs, "PRIMARY KEY ("+pk+")")
	}
	if len(t.UniqueKey) > 0 {
		defs = append(defs, fmt.Sprintf("UNIQUE KEY %s (%s)",
			d.QuoteIdentifier("uq_"+t.Name), driver.QuoteColumns(d, t.UniqueKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		d.QualifyTable(t.Schema, t.Name), strings.Join(defs, ",\n  ")), nil
}

// UpsertSQL builds a multi-row INSERT that updates non-key columns on a
// duplicate key, using the row alias syntax of MySQL 8.0.19+. With no
// non-key columns it degrades to INSERT IGNORE.
func (d *Dialect) UpsertSQL(schema, table string, columns, keys []string, nrows int) string {
	insert := driver.InsertSQL(d, schema, table, columns, nrows)
	update := driver.NonKeyColumns(columns, keys)
	if len(update) == 0 {
		return "INSERT IGNORE" + strings.TrimPrefix(insert, "INSERT")
	}
	sets := make([]string, len(update))
	for i, c := range update {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = new.%s", q, q)
	}
	return insert + " AS new ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}
