// Package driver provides pluggable destination database drivers.
// Each database (MySQL, PostgreSQL, SQL Server, SQLite) implements the Driver
// interface to provide all database-specific functionality in one unit.
package driver

import (
	"context"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
)

// DriverDefaults contains default values for a database driver.
// Used by config.applyDefaults() to set sensible defaults for each database type.
type DriverDefaults struct {
	// Port is the default port (e.g., 3306 for MySQL, 5432 for PostgreSQL).
	Port int

	// Schema is the default schema (e.g., "public" for PostgreSQL, "dbo" for MSSQL).
	Schema string

	// MaxParams is the engine's bind parameter limit per statement (0 = none).
	MaxParams int
}

// Driver represents a destination database.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "mysql", "postgres").
	Name() string

	// Aliases returns alternative names for this driver.
	// For example, postgres might have aliases ["postgresql", "pg"].
	Aliases() []string

	// Defaults returns the default configuration values for this driver.
	Defaults() DriverDefaults

	// Dialect returns the SQL dialect for this database.
	Dialect() Dialect

	// NewWriter opens a connection pool and returns a Writer.
	NewWriter(cfg *dbconfig.TargetConfig, opts WriterOptions) (Writer, error)
}

// Dialect covers the SQL differences between engines.
type Dialect interface {
	DBType() string
	QuoteIdentifier(name string) string
	QualifyTable(schema, table string) string
	BuildDSN(cfg *dbconfig.TargetConfig) string
	// Placeholder returns the bind parameter for the 1-based position n.
	Placeholder(n int) string
	// CreateTableSQL returns an idempotent CREATE TABLE statement.
	CreateTableSQL(t *Table) (string, error)
}

// Writer loads rows into the destination table.
type Writer interface {
	// EnsureTable creates the table when it does not exist.
	EnsureTable(ctx context.Context, t *Table) error

	// WriteBatch appends rows.
	WriteBatch(ctx context.Context, opts WriteBatchOptions) (int64, error)

	// UpsertBatch inserts rows, updating existing rows with the same key.
	UpsertBatch(ctx context.Context, opts UpsertBatchOptions) (int64, error)

	// RowCount returns the number of rows in a table.
	RowCount(ctx context.Context, schema, table string) (int64, error)

	Close() error
}

// WriterOptions contains options for creating a Writer.
type WriterOptions struct {
	// MaxConns bounds the connection pool (default 4).
	MaxConns int

	// RowsPerBatch is the number of rows per multi-row statement.
	RowsPerBatch int
}

// WriteBatchOptions describes rows to append.
type WriteBatchOptions struct {
	Schema  string
	Table   string
	Columns []string
	Rows    [][]any
}

// UpsertBatchOptions describes rows to upsert on KeyColumns.
type UpsertBatchOptions struct {
	Schema     string
	Table      string
	Columns    []string
	KeyColumns []string
	Rows       [][]any
}
