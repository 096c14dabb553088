package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks loaded rows. A disabled tracker only counts.
type Tracker struct {
	bar       *progressbar.ProgressBar
	out       io.Writer
	enabled   bool
	total     int64
	current   atomic.Int64
	startTime time.Time
}

// New creates a new progress tracker writing to stderr.
func New(enabled bool) *Tracker {
	return NewWithWriter(enabled, os.Stderr)
}

// NewWithWriter creates a tracker rendering to out.
func NewWithWriter(enabled bool, out io.Writer) *Tracker {
	return &Tracker{
		out:       out,
		enabled:   enabled,
		total:     -1,
		startTime: time.Now(),
	}
}

// SetTotal sets the number of rows expected. A negative total (unknown)
// renders a spinner.
func (t *Tracker) SetTotal(total int64) {
	t.total = total
	if !t.enabled {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription("Loading"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
	if current := t.current.Load(); current > 0 {
		t.bar.Add64(current)
	}
}

// Total returns the expected total, -1 when unknown.
func (t *Tracker) Total() int64 {
	return t.total
}

// Add increments the progress counter
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Current returns the current count
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish marks the progress as complete
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}
	if !t.enabled {
		return
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / max(elapsed.Seconds(), 1e-9)

	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "Loaded %d rows in %s (%.0f rows/sec)\n",
		t.current.Load(), elapsed.Round(time.Second), rowsPerSec)
}
