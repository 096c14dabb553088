// Package pipeline runs extraction, transformation and load page by page.
package pipeline

import (
	"fmt"
	"time"
)

// Stats tracks timing statistics for profiling a run.
type Stats struct {
	// ExtractTime is total time spent waiting for pages from the provider.
	ExtractTime time.Duration

	// TransformTime covers transformation, derived fields and quality flags.
	TransformTime time.Duration

	// LoadTime is total time spent writing to the target.
	LoadTime time.Duration

	// Rows is the total number of rows transformed.
	Rows int64
}

// String returns a formatted summary of the stats.
func (s *Stats) String() string {
	total := s.TotalTime()
	if total == 0 {
		return "no data"
	}
	return fmt.Sprintf("extract=%.1fs (%.0f%%), transform=%.1fs (%.0f%%), load=%.1fs (%.0f%%), rows=%d",
		s.ExtractTime.Seconds(), float64(s.ExtractTime)/float64(total)*100,
		s.TransformTime.Seconds(), float64(s.TransformTime)/float64(total)*100,
		s.LoadTime.Seconds(), float64(s.LoadTime)/float64(total)*100,
		s.Rows)
}

// TotalTime returns the sum of all timing components.
func (s *Stats) TotalTime() time.Duration {
	return s.ExtractTime + s.TransformTime + s.LoadTime
}

// RowsPerSecond calculates the throughput.
func (s *Stats) RowsPerSecond() float64 {
	total := s.TotalTime()
	if total == 0 {
		return 0
	}
	return float64(s.Rows) / total.Seconds()
}

// Timings is the serializable form of Stats, in seconds.
type Timings struct {
	Extract   float64 `json:"extract_seconds" yaml:"extract_seconds"`
	Transform float64 `json:"transform_seconds" yaml:"transform_seconds"`
	Load      float64 `json:"load_seconds" yaml:"load_seconds"`
	Total     float64 `json:"total_seconds" yaml:"total_seconds"`
}

// Timings converts the stats for a report.
func (s *Stats) Timings() Timings {
	return Timings{
		Extract:   s.ExtractTime.Seconds(),
		Transform: s.TransformTime.Seconds(),
		Load:      s.LoadTime.Seconds(),
		Total:     s.TotalTime().Seconds(),
	}
}
