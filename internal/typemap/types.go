// Package typemap maps the ETL's semantic column types to the SQL types of
// each supported destination engine.
package typemap

import (
	"fmt"
	"strings"
)

// Semantic types. The first five match the schema types; the others are
// used for bookkeeping columns of the destination table.
const (
	String    = "string"
	Text      = "text"
	Date      = "date"
	Integer   = "integer"
	Decimal   = "decimal"
	BigInt    = "bigint"
	Timestamp = "timestamp"
	JSON      = "json"
)

// Default sizes applied when a column does not set its own.
const (
	DefaultStringSize = 255
	DefaultPrecision  = 14
	DefaultScale      = 2
)

// Spec describes a column's storage independently of the engine.
type Spec struct {
	Type      string
	Size      int // string length
	Precision int // decimal precision
	Scale     int // decimal scale
}

// SQLType returns the column type for dbType ("mysql", "postgres", "mssql",
// "sqlite"). Unknown semantic types are stored as strings.
func SQLType(dbType string, s Spec) (string, error) {
	size := s.Size
	if size <= 0 {
		size = DefaultStringSize
	}
	precision, scale := s.Precision, s.Scale
	if precision <= 0 {
		precision, scale = DefaultPrecision, DefaultScale
	}

	switch strings.ToLower(dbType) {
	case "mysql":
		return mysqlType(s.Type, size, precision, scale), nil
	case "postgres":
		return postgresType(s.Type, size, precision, scale), nil
	case "mssql":
		return mssqlType(s.Type, size, precision, scale), nil
	case "sqlite":
		return sqliteType(s.Type), nil
	}
	return "", fmt.Errorf("no type mapping for database type %q", dbType)
}

func mysqlType(t string, size, precision, scale int) string {
	switch strings.ToLower(t) {
	case Text:
		return "TEXT"
	case Date:
		return "DATE"
	case Integer:
		return "INT"
	case BigInt:
		return "BIGINT"
	case Decimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	case Timestamp:
		return "DATETIME"
	case JSON:
		return "JSON"
	default:
		return fmt.Sprintf("VARCHAR(%d)", size)
	}
}

func postgresType(t string, size, precision, scale int) string {
	switch strings.ToLower(t) {
	case Text:
		return "text"
	case Date:
		return "date"
	case Integer:
		return "integer"
	case BigInt:
		return "bigint"
	case Decimal:
		return fmt.Sprintf("numeric(%d,%d)", precision, scale)
	case Timestamp:
		return "timestamptz"
	case JSON:
		return "jsonb"
	default:
		return fmt.Sprintf("varchar(%d)", size)
	}
}

func mssqlType(t string, size, precision, scale int) string {
	switch strings.ToLower(t) {
	case Text, JSON:
		return "NVARCHAR(MAX)"
	case Date:
		return "DATE"
	case Integer:
		return "INT"
	case BigInt:
		return "BIGINT"
	case Decimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	case Timestamp:
		return "DATETIME2"
	default:
		if size > 4000 {
			return "NVARCHAR(MAX)"
		}
		return fmt.Sprintf("NVARCHAR(%d)", size)
	}
}

// sqliteType uses type affinities; lengths and precision are not enforced.
func sqliteType(t string) string {
	switch strings.ToLower(t) {
	case Integer, BigInt:
		return "INTEGER"
	case Decimal:
		return "REAL"
	case Date, Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
