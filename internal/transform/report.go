package transform

import (
	"fmt"
	"sort"
	"strings"
)

// maxRecordErrors bounds how many individual failures a report keeps. The
// Errors counter is always exact.
const maxRecordErrors = 100

// RecordError is a record that could not be transformed.
type RecordError struct {
	Index int
	Cause error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Cause)
}

func (e *RecordError) Unwrap() error {
	return e.Cause
}

// ErrorEntry is the serializable form of a RecordError.
type ErrorEntry struct {
	Index int    `json:"index" yaml:"index"`
	Error string `json:"error" yaml:"error"`
}

// Report summarizes a transformation. It only holds primitives so it can be
// logged or written to a file as is.
type Report struct {
	Total         int            `json:"total" yaml:"total"`
	Converted     int            `json:"converted" yaml:"converted"`
	Errors        int            `json:"errors" yaml:"errors"`
	GeneratedKeys int            `json:"generated_keys" yaml:"generated_keys"`
	Missing       map[string]int `json:"missing" yaml:"missing"`
	// Invalid counts values that were present but could not be converted
	// and were stored as null.
	Invalid      map[string]int `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	RecordErrors []ErrorEntry   `json:"record_errors,omitempty" yaml:"record_errors,omitempty"`
}

// NewReport returns an empty report with a zero missing count per column.
func NewReport(columns []string) *Report {
	r := &Report{Missing: make(map[string]int, len(columns)), Invalid: make(map[string]int)}
	for _, c := range columns {
		r.Missing[c] = 0
	}
	return r
}

func (r *Report) addError(err *RecordError) {
	r.Errors++
	if len(r.RecordErrors) < maxRecordErrors {
		r.RecordErrors = append(r.RecordErrors, ErrorEntry{Index: err.Index, Error: err.Cause.Error()})
	}
}

// Merge adds another batch's report into r. offset is the position of the
// other batch's first record in the run, so record indexes stay global.
func (r *Report) Merge(o *Report, offset int) {
	if o == nil {
		return
	}
	if r.Missing == nil {
		r.Missing = make(map[string]int)
	}
	if r.Invalid == nil {
		r.Invalid = make(map[string]int)
	}
	r.Total += o.Total
	r.Converted += o.Converted
	r.Errors += o.Errors
	r.GeneratedKeys += o.GeneratedKeys
	for c, n := range o.Missing {
		r.Missing[c] += n
	}
	for c, n := range o.Invalid {
		r.Invalid[c] += n
	}
	for _, e := range o.RecordErrors {
		if len(r.RecordErrors) >= maxRecordErrors {
			break
		}
		r.RecordErrors = append(r.RecordErrors, ErrorEntry{Index: e.Index + offset, Error: e.Error})
	}
}

// MissingSummary renders the non-zero missing counts as "col=n, ..." sorted by
// column name.
func (r *Report) MissingSummary() string {
	cols := make([]string, 0, len(r.Missing))
	for c, n := range r.Missing {
		if n > 0 {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return "none"
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s=%d", c, r.Missing[c])
	}
	return strings.Join(parts, ", ")
}
