package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/immo-etl/internal/derive"
	"github.com/johndauphine/immo-etl/internal/extract"
	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/notify"
	"github.com/johndauphine/immo-etl/internal/progress"
	"github.com/johndauphine/immo-etl/internal/quality"
	"github.com/johndauphine/immo-etl/internal/transform"
)

// ErrNothingExtracted is returned when the provider yields no record at all.
var ErrNothingExtracted = errors.New("no records extracted")

// maxNotifiedErrors is the number of record errors quoted in notifications.
const maxNotifiedErrors = 5

// Source yields pages of raw records. *extract.Client implements it.
type Source interface {
	Pages(ctx context.Context) iter.Seq2[extract.Page, error]
}

// Sink stores transformed tables. *load.Loader implements it.
type Sink interface {
	Load(ctx context.Context, t *transform.Table) (int64, error)
}

// Recorder keeps a history of runs. *checkpoint.State implements it.
type Recorder interface {
	StartRun(id, dataset, target string, dryRun bool) error
	FinishRun(id, status string, extracted, loaded int64, recordErrors int, errorMsg string) error
}

// Config contains pipeline execution configuration.
type Config struct {
	// KeyColumn is the business key used for duplicate detection.
	KeyColumn string

	// CriticalFields must be non-null for a row to count as complete.
	CriticalFields []string

	// DryRun transforms every page but writes nothing.
	DryRun bool

	// MaxRecords caps the progress total (0 = provider total).
	MaxRecords int

	// Dataset and Target only label notifications and logs.
	Dataset string
	Target  string
}

// Pipeline moves pages from a Source through the transformer and the
// calculator into a Sink, one page at a time.
type Pipeline struct {
	source      Source
	sink        Sink
	transformer *transform.Transformer
	calculator  *derive.Calculator
	progress    *progress.Tracker
	notifier    *notify.Notifier
	recorder    Recorder
	config      Config
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithProgress renders loaded rows on tracker.
func WithProgress(tracker *progress.Tracker) Option {
	return func(p *Pipeline) { p.progress = tracker }
}

// WithNotifier sends run notifications through n.
func WithNotifier(n *notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithRecorder stores every run in r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithCalculator replaces the default derived-field calculator.
func WithCalculator(c *derive.Calculator) Option {
	return func(p *Pipeline) { p.calculator = c }
}

// New creates a Pipeline. sink may be nil only for a dry run.
func New(source Source, tr *transform.Transformer, sink Sink, cfg Config, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("pipeline needs a source")
	}
	if tr == nil {
		return nil, fmt.Errorf("pipeline needs a transformer")
	}
	if sink == nil && !cfg.DryRun {
		return nil, fmt.Errorf("pipeline needs a sink unless dry run is set")
	}
	if cfg.CriticalFields == nil {
		cfg.CriticalFields = quality.DefaultCriticalFields
	}

	p := &Pipeline{
		source:      source,
		sink:        sink,
		transformer: tr,
		calculator:  derive.New(),
		config:      cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.progress == nil {
		p.progress = progress.New(false)
	}
	if p.notifier == nil {
		p.notifier = notify.New(nil)
	}
	return p, nil
}

// Run processes every page. The returned Result is never nil, also on error,
// so that a failed run can still be reported.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now(),
		DryRun:    p.config.DryRun,
		Report:    transform.NewReport(p.transformer.Columns()),
	}
	var stats Stats

	if p.config.DryRun {
		logging.Info("Performing dry run (nothing will be written)...")
	}
	if err := p.notifier.RunStarted(res.RunID, p.config.Dataset, p.config.Target); err != nil {
		logging.Warn("Failed to send start notification: %v", err)
	}
	if p.recorder != nil {
		if err := p.recorder.StartRun(res.RunID, p.config.Dataset, p.config.Target, p.config.DryRun); err != nil {
			logging.Warn("Failed to record run start: %v", err)
		}
	}

	err := p.run(ctx, res, &stats)
	p.progress.Finish()

	res.Duration = time.Since(res.StartedAt)
	res.Stats = stats
	res.Timings = stats.Timings()

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		logging.Error("Run %s failed after %s: %v", res.RunID, res.Duration.Round(time.Millisecond), err)
		if nerr := p.notifier.RunFailed(res.RunID, err, res.Duration); nerr != nil {
			logging.Warn("Failed to send failure notification: %v", nerr)
		}
		p.record(res)
		return res, err
	}

	res.Status = StatusSuccess
	if res.Report.Errors > 0 {
		res.Status = StatusCompletedWithErrors
	}
	p.logSummary(res, &stats)
	p.notifyCompleted(res)
	p.record(res)
	return res, nil
}

func (p *Pipeline) record(res *Result) {
	if p.recorder == nil {
		return
	}
	err := p.recorder.FinishRun(res.RunID, string(res.Status), res.Extracted, res.Loaded, res.Report.Errors, res.Error)
	if err != nil {
		logging.Warn("Failed to record run result: %v", err)
	}
}

func (p *Pipeline) run(ctx context.Context, res *Result, stats *Stats) error {
	pull := time.Now()
	for page, err := range p.source.Pages(ctx) {
		stats.ExtractTime += time.Since(pull)
		if err != nil {
			return fmt.Errorf("extracting page %d: %w", res.Pages+1, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res.Pages++
		res.Extracted += int64(len(page.Records))
		p.updateTotal(page)
		logging.Debug("Page %d: %d records at offset %d", res.Pages, len(page.Records), page.Offset)

		if err := p.process(ctx, page, res, stats); err != nil {
			return err
		}
		pull = time.Now()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Extracted == 0 {
		return ErrNothingExtracted
	}
	return nil
}

// process transforms, flags and loads one page.
func (p *Pipeline) process(ctx context.Context, page extract.Page, res *Result, stats *Stats) error {
	start := time.Now()
	table, report := p.transformer.Batch(page.Records)
	res.Report.Merge(report, page.Offset)
	if report.Errors > 0 {
		logging.Warn("Page at offset %d: %d of %d records failed to transform", page.Offset, report.Errors, report.Total)
	}

	if _, err := p.calculator.Apply(table); err != nil {
		return fmt.Errorf("deriving fields at offset %d: %w", page.Offset, err)
	}

	assessment := quality.Assess(table, p.config.KeyColumn, p.config.CriticalFields)
	summary := assessment.Summary()
	res.Quality.Add(summary)
	if summary.Incomplete > 0 {
		logging.Debug("Page at offset %d: %d rows miss a critical field", page.Offset, summary.Incomplete)
	}
	if len(assessment.DuplicateKeys) > 0 {
		logging.Warn("Page at offset %d: %d duplicated business keys", page.Offset, len(assessment.DuplicateKeys))
	}
	stats.TransformTime += time.Since(start)
	stats.Rows += int64(table.Len())

	if p.config.DryRun {
		p.progress.Add(int64(table.Len()))
		return nil
	}

	start = time.Now()
	n, err := p.sink.Load(ctx, table)
	stats.LoadTime += time.Since(start)
	if err != nil {
		return fmt.Errorf("loading page at offset %d: %w", page.Offset, err)
	}
	res.Loaded += n
	p.progress.Add(n)
	return nil
}

func (p *Pipeline) updateTotal(page extract.Page) {
	if p.progress.Total() >= 0 || page.TotalHits < 0 {
		return
	}
	total := page.TotalHits
	if p.config.MaxRecords > 0 {
		total = min(total, int64(p.config.MaxRecords))
	}
	p.progress.SetTotal(total)
}

func (p *Pipeline) logSummary(res *Result, stats *Stats) {
	logging.Info("Run %s finished: %d pages, %d records extracted, %d converted, %d errors, %d rows loaded in %s",
		res.RunID, res.Pages, res.Extracted, res.Report.Converted, res.Report.Errors, res.Loaded,
		res.Duration.Round(time.Millisecond))
	logging.Info("Generated keys: %d, missing values: %s", res.Report.GeneratedKeys, res.Report.MissingSummary())
	logging.Info("Quality: %d complete, %d incomplete, %d duplicate rows",
		res.Quality.Complete, res.Quality.Incomplete, res.Quality.DuplicateRows)
	logging.Debug("Stats: %s (%.0f rows/sec)", stats.String(), stats.RowsPerSecond())
}

func (p *Pipeline) notifyCompleted(res *Result) {
	var err error
	if res.Report.Errors > 0 {
		n := min(len(res.Report.RecordErrors), maxNotifiedErrors)
		samples := make([]string, 0, n)
		for _, e := range res.Report.RecordErrors[:n] {
			samples = append(samples, fmt.Sprintf("record %d: %s", e.Index, e.Error))
		}
		err = p.notifier.RunCompletedWithErrors(res.RunID, res.StartedAt, res.Duration, res.Loaded, int64(res.Report.Errors), samples)
	} else {
		err = p.notifier.RunCompleted(res.RunID, res.StartedAt, res.Duration, res.Extracted, res.Loaded)
	}
	if err != nil {
		logging.Warn("Failed to send completion notification: %v", err)
	}
}
