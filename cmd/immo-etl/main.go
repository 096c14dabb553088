package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johndauphine/immo-etl/internal/checkpoint"
	"github.com/johndauphine/immo-etl/internal/config"
	"github.com/johndauphine/immo-etl/internal/derive"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/extract"
	"github.com/johndauphine/immo-etl/internal/load"
	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/notify"
	"github.com/johndauphine/immo-etl/internal/pipeline"
	"github.com/johndauphine/immo-etl/internal/progress"
	"github.com/johndauphine/immo-etl/internal/quality"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/johndauphine/immo-etl/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file (optional)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Extract the dataset, transform it and load it into the target",
				Action: runETL,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Extract and transform without writing to the target",
					},
					&cli.StringFlag{
						Name:  "report-file",
						Usage: "Write the run report to this file (.json or .yaml)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Load mode: append or upsert",
					},
					&cli.IntFlag{
						Name:  "max-records",
						Usage: "Stop after this many records (0 = all)",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
				},
			},
			{
				Name:      "transform",
				Usage:     "Transform a JSON file of raw records and print the rows",
				ArgsUsage: "<file.json>",
				Action:    transformFile,
			},
			{
				Name:  "history",
				Usage: "List recorded runs, or show one run with --run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
			},
			{
				Name:   "ddl",
				Usage:  "Print the CREATE TABLE statement for the configured target",
				Action: printDDL,
			},
			{
				Name:  "version",
				Usage: "Show version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "%s %s\n", version.Name, version.Version)
					return nil
				},
			},
		},
	}
}

// loadConfig reads the configuration and applies the global logging flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)
	return cfg, nil
}

func newTransformer(cfg *config.Config) (*transform.Transformer, error) {
	return transform.New(transform.Options{
		Schema:       cfg.Transform.TargetSchema(),
		KeyColumn:    cfg.Transform.BusinessKey,
		Canonicalize: cfg.Transform.Canonicalize(),
		Extras:       transform.ExtrasPolicy(cfg.Transform.Extras),
	})
}

func targetLabel(cfg *config.Config) string {
	if cfg.Target.Path != "" {
		return fmt.Sprintf("%s:%s/%s", cfg.Target.Type, cfg.Target.Path, cfg.Target.Table)
	}
	return fmt.Sprintf("%s://%s:%d/%s.%s", cfg.Target.Type, cfg.Target.Host, cfg.Target.Port, cfg.Target.Database, cfg.Target.Table)
}

func runETL(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Override from flags
	if c.IsSet("mode") {
		cfg.Load.Mode = c.String("mode")
	}
	if c.IsSet("max-records") {
		cfg.Source.MaxRecords = c.Int("max-records")
	}
	if c.IsSet("report-file") {
		cfg.Load.ReportFile = c.String("report-file")
	}
	mode, err := load.ParseMode(cfg.Load.Mode)
	if err != nil {
		return err
	}
	dryRun := c.Bool("dry-run")

	if logging.IsDebug() {
		redacted := cfg.Redacted()
		logging.Debug("Configuration: %+v", redacted)
	}

	client, err := extract.NewClient(cfg.Source.ExtractConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	tr, err := newTransformer(cfg)
	if err != nil {
		return err
	}

	var sink pipeline.Sink
	if !dryRun {
		w, err := load.Open(&cfg.Target.TargetConfig, driver.WriterOptions{
			MaxConns:     cfg.Target.MaxConns,
			RowsPerBatch: cfg.Target.ChunkSize,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to target: %w", err)
		}
		defer w.Close()

		loader, err := load.New(w, load.BuildTable(cfg.Transform.TargetSchema(), cfg.TableSpec()), mode)
		if err != nil {
			return err
		}
		sink = loader
	}

	opts := []pipeline.Option{
		pipeline.WithProgress(progress.New(!c.Bool("no-progress"))),
		pipeline.WithNotifier(notify.New(&cfg.Slack)),
	}
	if cfg.History.Dir != "" {
		state, err := checkpoint.New(cfg.History.Dir)
		if err != nil {
			return err
		}
		defer state.Close()
		opts = append(opts, pipeline.WithRecorder(state))
	}

	p, err := pipeline.New(client, tr, sink, pipeline.Config{
		KeyColumn:      cfg.Transform.BusinessKey,
		CriticalFields: cfg.Transform.CriticalFields,
		DryRun:         dryRun,
		MaxRecords:     cfg.Source.MaxRecords,
		Dataset:        cfg.Source.Dataset,
		Target:         targetLabel(cfg),
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(c.App.ErrWriter, "\nInterrupted. Stopping after the current page...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info("Starting run: dataset %s -> %s (mode %s)", cfg.Source.Dataset, targetLabel(cfg), mode)
	res, runErr := p.Run(ctx)
	if cfg.Load.ReportFile != "" && res != nil {
		if err := pipeline.WriteReport(cfg.Load.ReportFile, res); err != nil {
			logging.Warn("Failed to write report: %v", err)
		} else {
			logging.Info("Report written to %s", cfg.Load.ReportFile)
		}
	}
	return runErr
}

func transformFile(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one input file, got %d arguments", c.NArg())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tr, err := newTransformer(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := extract.ReadRecords(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.Args().First(), err)
	}

	table, report := tr.Batch(records)
	if _, err := derive.New().Apply(table); err != nil {
		return fmt.Errorf("deriving fields: %w", err)
	}

	critical := cfg.Transform.CriticalFields
	if critical == nil {
		critical = quality.DefaultCriticalFields
	}
	summary := quality.Assess(table, cfg.Transform.BusinessKey, critical).Summary()
	logging.Info("Quality: %d complete, %d incomplete, %d duplicate rows",
		summary.Complete, summary.Incomplete, summary.DuplicateRows)

	out := json.NewEncoder(c.App.Writer)
	out.SetIndent("", "  ")
	if err := out.Encode(table.Records()); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	errOut := json.NewEncoder(c.App.ErrWriter)
	errOut.SetIndent("", "  ")
	return errOut.Encode(report)
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.History.Dir == "" {
		return fmt.Errorf("run history is disabled (set history.dir or ETL_HISTORY_DIR)")
	}
	state, err := checkpoint.New(cfg.History.Dir)
	if err != nil {
		return err
	}
	defer state.Close()

	w := c.App.Writer
	if runID := c.String("run"); runID != "" {
		run, err := state.GetRunByID(runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Run:       %s\n", run.ID)
		fmt.Fprintf(w, "Status:    %s\n", run.Status)
		fmt.Fprintf(w, "Dataset:   %s\n", run.Dataset)
		fmt.Fprintf(w, "Target:    %s\n", run.Target)
		fmt.Fprintf(w, "Dry run:   %t\n", run.DryRun)
		fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Duration:  %s\n", run.Duration().Round(time.Second))
		fmt.Fprintf(w, "Extracted: %d\n", run.Extracted)
		fmt.Fprintf(w, "Loaded:    %d\n", run.Loaded)
		fmt.Fprintf(w, "Errors:    %d\n", run.RecordErrors)
		if run.Error != "" {
			fmt.Fprintf(w, "Failure:   %s\n", run.Error)
		}
		return nil
	}

	runs, err := state.GetAllRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-21s  %-19s  %10s  %10s\n", "RUN ID", "STATUS", "STARTED", "EXTRACTED", "LOADED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-21s  %-19s  %10d  %10d\n",
			r.ID, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Extracted, r.Loaded)
	}
	return nil
}

func printDDL(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := driver.Get(cfg.Target.Type)
	if err != nil {
		return err
	}
	ddl, err := d.Dialect().CreateTableSQL(load.BuildTable(cfg.Transform.TargetSchema(), cfg.TableSpec()))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, ddl+";")
	return nil
}
