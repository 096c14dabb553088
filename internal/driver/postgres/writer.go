package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/logging"
)

// Writer implements driver.Writer for PostgreSQL.
type Writer struct {
	pool    *pgxpool.Pool
	dialect *Dialect
}

// NewWriter creates a new PostgreSQL writer.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}

	poolCfg, err := pgxpool.ParseConfig(dialect.BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = int32(maxConns / 4)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Debug("Connected to PostgreSQL target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Writer{pool: pool, dialect: dialect}, nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}

// EnsureTable creates the schema and table when they do not exist.
func (w *Writer) EnsureTable(ctx context.Context, t *driver.Table) error {
	if t.Schema != "" && t.Schema != "public" {
		if _, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+w.dialect.QuoteIdentifier(t.Schema)); err != nil {
			return fmt.Errorf("creating schema %s: %w", t.Schema, err)
		}
	}
	ddl, err := w.dialect.CreateTableSQL(t)
	if err != nil {
		return err
	}
	logging.Debug("Ensuring table %s:\n%s", t.FullName(), ddl)
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", t.FullName(), err)
	}
	return nil
}

// WriteBatch writes a batch of rows using COPY protocol.
func (w *Writer) WriteBatch(ctx context.Context, opts driver.WriteBatchOptions) (int64, error) {
	if len(opts.Rows) == 0 {
		return 0, nil
	}
	n, err := w.pool.CopyFrom(ctx, identifier(opts.Schema, opts.Table), opts.Columns, copySource(opts.Rows))
	if err != nil {
		return 0, fmt.Errorf("copying into %s: %w", opts.Table, err)
	}
	return n, nil
}

// UpsertBatch performs an upsert using staging table + INSERT ON CONFLICT.
// The staging table lives for the duration of the transaction.
func (w *Writer) UpsertBatch(ctx context.Context, opts driver.UpsertBatchOptions) (int64, error) {
	if len(opts.KeyColumns) == 0 {
		return 0, fmt.Errorf("upsert requires key columns")
	}
	rows := driver.DedupeByKey(opts.Columns, opts.KeyColumns, opts.Rows)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hash := sha256.Sum256([]byte(opts.Schema + "." + opts.Table))
	staging := fmt.Sprintf("_stg_%x", hash[:8])

	_, err = tx.Exec(ctx, fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		w.dialect.QuoteIdentifier(staging),
		driver.QuoteColumns(w.dialect, opts.Columns),
		w.dialect.QualifyTable(opts.Schema, opts.Table)))
	if err != nil {
		return 0, fmt.Errorf("creating staging table: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, opts.Columns, copySource(rows)); err != nil {
		return 0, fmt.Errorf("copying to staging: %w", err)
	}

	if _, err := tx.Exec(ctx, w.dialect.UpsertSQL(opts.Schema, opts.Table, staging, opts.Columns, opts.KeyColumns)); err != nil {
		return 0, fmt.Errorf("upserting: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return int64(len(rows)), nil
}

// RowCount returns the number of rows in a table.
func (w *Writer) RowCount(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	err := w.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+w.dialect.QualifyTable(schema, table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}

func identifier(schema, table string) pgx.Identifier {
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func copySource(rows [][]any) pgx.CopyFromSource {
	converted := make([][]any, len(rows))
	for i, r := range rows {
		converted[i] = driver.ConvertRow(r)
	}
	return pgx.CopyFromRows(converted)
}
