package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/logging"
)

// Writer implements driver.Writer for MySQL/MariaDB.
type Writer struct {
	db           *sql.DB
	dialect      *Dialect
	rowsPerBatch int
	isMariaDB    bool
}

// NewWriter creates a new MySQL/MariaDB writer.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}
	db, err := sql.Open("mysql", dialect.BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(maxConns/4, 1))
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Detect MySQL vs MariaDB
	var version string
	if err := db.QueryRow("SELECT VERSION()").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("querying version: %w", err)
	}
	isMariaDB := strings.Contains(strings.ToLower(version), "mariadb")

	dbType := "MySQL"
	if isMariaDB {
		dbType = "MariaDB"
	}
	logging.Debug("Connected to %s target: %s:%d/%s (%s)", dbType, cfg.Host, cfg.Port, cfg.Database, version)

	return &Writer{
		db:           db,
		dialect:      dialect,
		rowsPerBatch: opts.RowsPerBatch,
		isMariaDB:    isMariaDB,
	}, nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	return w.db.Close()
}

// EnsureTable creates the table when it does not exist.
func (w *Writer) EnsureTable(ctx context.Context, t *driver.Table) error {
	ddl, err := w.dialect.CreateTableSQL(t)
	if err != nil {
		return err
	}
	logging.Debug("Ensuring table %s:\n%s", t.FullName(), ddl)
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", t.FullName(), err)
	}
	return nil
}

// WriteBatch writes rows with multi-row INSERTs in one transaction.
func (w *Writer) WriteBatch(ctx context.Context, opts driver.WriteBatchOptions) (int64, error) {
	size := driver.RowsPerStatement(w.rowsPerBatch, len(opts.Columns), (&Driver{}).Defaults().MaxParams)
	return driver.ExecChunks(ctx, w.db, opts.Rows, size, func(n int) string {
		return driver.InsertSQL(w.dialect, opts.Schema, opts.Table, opts.Columns, n)
	}, convertRowValues)
}

// UpsertBatch performs upsert using INSERT ... ON DUPLICATE KEY UPDATE.
func (w *Writer) UpsertBatch(ctx context.Context, opts driver.UpsertBatchOptions) (int64, error) {
	if len(opts.KeyColumns) == 0 {
		return 0, fmt.Errorf("upsert requires key columns")
	}
	if w.isMariaDB {
		return 0, fmt.Errorf("upsert needs the MySQL 8.0.19+ row alias syntax, which MariaDB lacks")
	}
	rows := driver.DedupeByKey(opts.Columns, opts.KeyColumns, opts.Rows)
	size := driver.RowsPerStatement(w.rowsPerBatch, len(opts.Columns), (&Driver{}).Defaults().MaxParams)
	return driver.ExecChunks(ctx, w.db, rows, size, func(n int) string {
		return w.dialect.UpsertSQL(opts.Schema, opts.Table, opts.Columns, opts.KeyColumns, n)
	}, convertRowValues)
}

// RowCount returns the number of rows in a table.
func (w *Writer) RowCount(ctx context.Context, schema, table string) (int64, error) {
	return driver.CountRows(ctx, w.db, w.dialect, schema, table)
}

// convertRowValues converts row values to MySQL-compatible types.
func convertRowValues(row []any) []any {
	result := make([]any, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case bool:
			// MySQL uses 1/0 for boolean
			if val {
				result[i] = 1
			} else {
				result[i] = 0
			}
		default:
			result[i] = v
		}
	}
	return result
}
