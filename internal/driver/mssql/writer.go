package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/logging"
	mssql "github.com/microsoft/go-mssqldb"
)

// Writer implements driver.Writer for SQL Server.
type Writer struct {
	db           *sql.DB
	dialect      *Dialect
	rowsPerBatch int
}

// NewWriter creates a new SQL Server writer.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}

	db, err := sql.Open("sqlserver", dialect.BuildDSN(cfg))
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

	logging.Debug("Connected to MSSQL target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Writer{db: db, dialect: dialect, rowsPerBatch: opts.RowsPerBatch}, nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	return w.db.Close()
}

// EnsureTable creates the schema and table when they do not exist.
func (w *Writer) EnsureTable(ctx context.Context, t *driver.Table) error {
	if t.Schema != "" && t.Schema != "dbo" {
		stmt := fmt.Sprintf("IF SCHEMA_ID(@p1) IS NULL EXEC('CREATE SCHEMA %s')", w.dialect.QuoteIdentifier(t.Schema))
		if _, err := w.db.ExecContext(ctx, stmt, t.Schema); err != nil {
			return fmt.Errorf("creating schema %s: %w", t.Schema, err)
		}
	}
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

// WriteBatch writes a batch of rows using TDS bulk copy.
func (w *Writer) WriteBatch(ctx context.Context, opts driver.WriteBatchOptions) (int64, error) {
	if len(opts.Rows) == 0 {
		return 0, nil
	}

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}
	defer conn.Close()

	var rowsAffected int64
	err = conn.Raw(func(driverConn any) error {
		mssqlConn, ok := driverConn.(*mssql.Conn)
		if !ok {
			return fmt.Errorf("expected *mssql.Conn, got %T", driverConn)
		}

		batchSize := w.rowsPerBatch
		if batchSize <= 0 || batchSize > len(opts.Rows) {
			batchSize = len(opts.Rows)
		}

		bulk := mssqlConn.CreateBulkContext(ctx, w.dialect.QualifyTable(opts.Schema, opts.Table), opts.Columns)
		bulk.Options.Tablock = true
		bulk.Options.RowsPerBatch = batchSize

		for _, row := range opts.Rows {
			if err := bulk.AddRow(driver.ConvertRow(row)); err != nil {
				return fmt.Errorf("adding row: %w", err)
			}
		}

		rowsAffected, err = bulk.Done()
		if err != nil {
			return fmt.Errorf("finalizing bulk insert: %w", err)
		}
		if rowsAffected != int64(len(opts.Rows)) {
			return fmt.Errorf("bulk insert: expected %d rows, got %d", len(opts.Rows), rowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk copy: %w", err)
	}
	return rowsAffected, nil
}

// UpsertBatch performs upsert using MERGE over parameterized VALUES rows.
func (w *Writer) UpsertBatch(ctx context.Context, opts driver.UpsertBatchOptions) (int64, error) {
	if len(opts.KeyColumns) == 0 {
		return 0, fmt.Errorf("upsert requires key columns")
	}
	rows := driver.DedupeByKey(opts.Columns, opts.KeyColumns, opts.Rows)
	size := driver.RowsPerStatement(w.rowsPerBatch, len(opts.Columns), (&Driver{}).Defaults().MaxParams)
	return driver.ExecChunks(ctx, w.db, rows, size, func(n int) string {
		return w.dialect.MergeSQL(opts.Schema, opts.Table, opts.Columns, opts.KeyColumns, n)
	}, nil)
}

// RowCount returns the number of rows in a table.
func (w *Writer) RowCount(ctx context.Context, schema, table string) (int64, error) {
	return driver.CountRows(ctx, w.db, w.dialect, schema, table)
}
