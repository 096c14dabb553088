// Package checkpoint persists the history of ETL runs.
package checkpoint

import (
	"time"
)

// StateBackend defines the interface for run history persistence.
type StateBackend interface {
	// Run management
	StartRun(id, dataset, target string, dryRun bool) error
	FinishRun(id, status string, extracted, loaded int64, recordErrors int, errorMsg string) error

	// History
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)

	// Lifecycle
	Close() error
}

// Ensure State implements StateBackend
var _ StateBackend = (*State)(nil)

// Run is one recorded run.
type Run struct {
	ID           string     `json:"id"`
	Dataset      string     `json:"dataset"`
	Target       string     `json:"target"`
	DryRun       bool       `json:"dry_run"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Extracted    int64      `json:"rows_extracted"`
	Loaded       int64      `json:"rows_loaded"`
	RecordErrors int        `json:"record_errors"`
	Error        string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or the time since it started
// when it has not completed.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
