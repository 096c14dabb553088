package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johndauphine/immo-etl/internal/logging"
	_ "modernc.org/sqlite"
)

// DatabaseFile is the name of the history database inside the data directory.
const DatabaseFile = "history.db"

// ErrRunNotFound is returned by GetRunByID for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	dataset       TEXT NOT NULL,
	target        TEXT NOT NULL,
	dry_run       INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	rows_extracted INTEGER NOT NULL DEFAULT 0,
	rows_loaded   INTEGER NOT NULL DEFAULT 0,
	record_errors INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// State is a SQLite backed run history.
type State struct {
	db *sql.DB
}

// New opens (and creates when needed) the history database in dataDir.
func New(dataDir string) (*State, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, DatabaseFile)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	logging.Debug("Run history at %s", path)
	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// StartRun records a run as running.
func (s *State) StartRun(id, dataset, target string, dryRun bool) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO runs (id, dataset, target, dry_run, status, started_at) VALUES (?, ?, ?, ?, 'running', ?)`,
		id, dataset, target, dryRun, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (s *State) FinishRun(id, status string, extracted, loaded int64, recordErrors int, errorMsg string) error {
	res, err := s.db.ExecContext(context.Background(), `
		UPDATE runs SET status = ?, completed_at = ?, rows_extracted = ?, rows_loaded = ?,
			record_errors = ?, error = ?
		WHERE id = ?`,
		status, time.Now().UTC(), extracted, loaded, recordErrors, nullString(errorMsg), id)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("completing run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const selectRuns = `SELECT id, dataset, target, dry_run, status, started_at, completed_at,
	rows_extracted, rows_loaded, record_errors, error FROM runs`

// GetAllRuns returns every run, most recent first.
func (s *State) GetAllRuns() ([]Run, error) {
	rows, err := s.db.QueryContext(context.Background(), selectRuns+` ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunByID returns one run.
func (s *State) GetRunByID(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(context.Background(), selectRuns+` WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		completed sql.NullTime
		errMsg    sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Dataset, &r.Target, &r.DryRun, &r.Status, &r.StartedAt, &completed,
		&r.Extracted, &r.Loaded, &r.RecordErrors, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("reading run: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	r.Error = errMsg.String
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
