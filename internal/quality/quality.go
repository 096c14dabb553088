// Package quality computes per-row data quality indicators for a batch.
// The indicators are diagnostics for logs and reports; they are never added
// to the table that gets loaded.
package quality

import (
	"fmt"
	"sort"

	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
)

// DefaultCriticalFields are the columns a row needs to be complete.
var DefaultCriticalFields = []string{schema.AssetID, schema.AcquisitionDate, schema.AcquisitionValue}

// Flags are the indicators of one row.
type Flags struct {
	// Complete is true when every critical field is non-null.
	Complete bool `json:"complete" yaml:"complete"`
	// Duplicate is true when the row's business key occurs more than once in
	// the batch.
	Duplicate bool `json:"duplicate" yaml:"duplicate"`
}

// Assessment holds the flags of a batch, row-aligned with the table.
type Assessment struct {
	Rows []Flags
	// DuplicateKeys lists the keys seen more than once, sorted.
	DuplicateKeys []string
}

// Summary is the aggregate of an assessment.
type Summary struct {
	Rows          int `json:"rows" yaml:"rows"`
	Complete      int `json:"complete" yaml:"complete"`
	Incomplete    int `json:"incomplete" yaml:"incomplete"`
	DuplicateRows int `json:"duplicate_rows" yaml:"duplicate_rows"`
	DuplicateKeys int `json:"duplicate_keys" yaml:"duplicate_keys"`
}

// Assess flags every row of table. Critical fields missing from the table
// count as null. Duplicates are evaluated within this table only.
func Assess(table *transform.Table, keyColumn string, critical []string) Assessment {
	a := Assessment{Rows: make([]Flags, table.Len())}

	counts := make(map[string]int, table.Len())
	keyIdx := table.ColumnIndex(keyColumn)
	if keyIdx >= 0 {
		for _, row := range table.Rows {
			if k, ok := keyString(row.Values[keyIdx]); ok {
				counts[k]++
			}
		}
	}

	idx := make([]int, len(critical))
	for i, c := range critical {
		idx[i] = table.ColumnIndex(c)
	}

	for i, row := range table.Rows {
		complete := true
		for _, j := range idx {
			if j < 0 || row.Values[j] == nil {
				complete = false
				break
			}
		}
		dup := false
		if keyIdx >= 0 {
			if k, ok := keyString(row.Values[keyIdx]); ok {
				dup = counts[k] > 1
			}
		}
		a.Rows[i] = Flags{Complete: complete, Duplicate: dup}
	}

	for k, n := range counts {
		if n > 1 {
			a.DuplicateKeys = append(a.DuplicateKeys, k)
		}
	}
	sort.Strings(a.DuplicateKeys)
	return a
}

// Summary aggregates the assessment.
func (a Assessment) Summary() Summary {
	s := Summary{Rows: len(a.Rows), DuplicateKeys: len(a.DuplicateKeys)}
	for _, f := range a.Rows {
		if f.Complete {
			s.Complete++
		} else {
			s.Incomplete++
		}
		if f.Duplicate {
			s.DuplicateRows++
		}
	}
	return s
}

// Add accumulates another batch's summary.
func (s *Summary) Add(o Summary) {
	s.Rows += o.Rows
	s.Complete += o.Complete
	s.Incomplete += o.Incomplete
	s.DuplicateRows += o.DuplicateRows
	s.DuplicateKeys += o.DuplicateKeys
}

func keyString(v any) (string, bool) {
	switch k := v.(type) {
	case nil:
		return "", false
	case string:
		return k, true
	default:
		return fmt.Sprint(k), true
	}
}
