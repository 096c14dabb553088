package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johndauphine/immo-etl/internal/quality"
	"github.com/johndauphine/immo-etl/internal/transform"
	"gopkg.in/yaml.v3"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning             Status = "running"
	StatusSuccess             Status = "success"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Result describes a finished run.
type Result struct {
	RunID     string            `json:"run_id" yaml:"run_id"`
	Status    Status            `json:"status" yaml:"status"`
	StartedAt time.Time         `json:"started_at" yaml:"started_at"`
	Duration  time.Duration     `json:"-" yaml:"-"`
	DryRun    bool              `json:"dry_run" yaml:"dry_run"`
	Pages     int               `json:"pages" yaml:"pages"`
	Extracted int64             `json:"rows_extracted" yaml:"rows_extracted"`
	Loaded    int64             `json:"rows_loaded" yaml:"rows_loaded"`
	Report    *transform.Report `json:"transformation" yaml:"transformation"`
	Quality   quality.Summary   `json:"quality" yaml:"quality"`
	Timings   Timings           `json:"timings" yaml:"timings"`
	Stats     Stats             `json:"-" yaml:"-"`
	Error     string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// WriteReport writes r to path as JSON or YAML depending on the extension
// (.json, .yaml or .yml).
func WriteReport(path string, r *Result) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		return fmt.Errorf("unsupported report format %q (use .json, .yaml or .yml)", ext)
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
