package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/logging"
	_ "modernc.org/sqlite"
)

// Writer implements driver.Writer for SQLite.
type Writer struct {
	db           *sql.DB
	dialect      *Dialect
	rowsPerBatch int
}

// NewWriter opens (or creates) the database file.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}
	path := dialect.BuildDSN(cfg)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db, path); err != nil {
		db.Close()
		return nil, err
	}

	logging.Debug("Opened SQLite target: %s", path)

	return &Writer{db: db, dialect: dialect, rowsPerBatch: opts.RowsPerBatch}, nil
}

func enablePragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (w *Writer) Close() error {
	return w.db.Close()
}

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

func (w *Writer) WriteBatch(ctx context.Context, opts driver.WriteBatchOptions) (int64, error) {
	size := driver.RowsPerStatement(w.rowsPerBatch, len(opts.Columns), (&Driver{}).Defaults().MaxParams)
	return driver.ExecChunks(ctx, w.db, opts.Rows, size, func(n int) string {
		return driver.InsertSQL(w.dialect, opts.Schema, opts.Table, opts.Columns, n)
	}, nil)
}

func (w *Writer) UpsertBatch(ctx context.Context, opts driver.UpsertBatchOptions) (int64, error) {
	if len(opts.KeyColumns) == 0 {
		return 0, fmt.Errorf("upsert requires key columns")
	}
	rows := driver.DedupeByKey(opts.Columns, opts.KeyColumns, opts.Rows)
	size := driver.RowsPerStatement(w.rowsPerBatch, len(opts.Columns), (&Driver{}).Defaults().MaxParams)
	return driver.ExecChunks(ctx, w.db, rows, size, func(n int) string {
		return w.dialect.UpsertSQL(opts.Schema, opts.Table, opts.Columns, opts.KeyColumns, n)
	}, nil)
}

func (w *Writer) RowCount(ctx context.Context, schema, table string) (int64, error) {
	return driver.CountRows(ctx, w.db, w.dialect, schema, table)
}
