package driver

import (
	"context"
	"database/sql"
	"fmt"
)

// ExecChunks runs one statement per chunk of rows inside a single
// transaction. build receives the chunk size and returns the statement;
// rows are passed through ConvertRow (and then convert, when non-nil) as
// flattened arguments. It returns the number of rows sent.
func ExecChunks(ctx context.Context, db *sql.DB, rows [][]any, chunkSize int, build func(nrows int) string, convert func([]any) []any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var written int64
	for _, chunk := range Chunks(rows, chunkSize) {
		args := make([]any, 0, len(chunk)*len(chunk[0]))
		for _, row := range chunk {
			converted := ConvertRow(row)
			if convert != nil {
				converted = convert(converted)
			}
			args = append(args, converted...)
		}
		if _, err := tx.ExecContext(ctx, build(len(chunk)), args...); err != nil {
			return 0, fmt.Errorf("writing %d rows: %w", len(chunk), err)
		}
		written += int64(len(chunk))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return written, nil
}

// CountRows runs SELECT COUNT(*) on a table.
func CountRows(ctx context.Context, db *sql.DB, d Dialect, schema, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+d.QualifyTable(schema, table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}
