// Package config loads the ETL configuration: defaults, then an optional
// YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/extract"
	"github.com/johndauphine/immo-etl/internal/load"
	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/notify"
	"github.com/johndauphine/immo-etl/internal/quality"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/secrets"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/johndauphine/immo-etl/internal/util"
	"gopkg.in/yaml.v3"

	// Register destination drivers so their defaults are known.
	_ "github.com/johndauphine/immo-etl/internal/driver/mssql"
	_ "github.com/johndauphine/immo-etl/internal/driver/mysql"
	_ "github.com/johndauphine/immo-etl/internal/driver/postgres"
	_ "github.com/johndauphine/immo-etl/internal/driver/sqlite"
)

// Defaults of the deployed job.
const (
	DefaultSearchURL = "https://opendata.paris.fr/api/records/1.0/search"
	DefaultDataset   = "immobilisations-etat-des-amortissements"
	DefaultPageSize  = 1000
	DefaultDatabase  = "immobilisations_amortissements"
)

// Config is the complete run configuration.
type Config struct {
	Source    SourceConfig       `yaml:"source"`
	Target    TargetConfig       `yaml:"target"`
	Transform TransformConfig    `yaml:"transform"`
	Load      LoadConfig         `yaml:"load"`
	Logging   LoggingConfig      `yaml:"logging"`
	Slack     notify.SlackConfig `yaml:"slack"`
	History   HistoryConfig      `yaml:"history"`
}

// SourceConfig configures extraction.
type SourceConfig struct {
	SearchURL         string        `yaml:"search_url"`
	Dataset           string        `yaml:"dataset"`
	APIStyle          string        `yaml:"api_style"` // records (default) or explore
	PageSize          int           `yaml:"page_size"`
	MaxRecords        int           `yaml:"max_records"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`
}

// ExtractConfig returns the extraction client settings.
func (s SourceConfig) ExtractConfig() extract.Config {
	return extract.Config{
		SearchURL:         s.SearchURL,
		Dataset:           s.Dataset,
		Style:             extract.Style(s.APIStyle),
		PageSize:          s.PageSize,
		MaxRecords:        s.MaxRecords,
		Timeout:           s.Timeout,
		MaxRetries:        s.MaxRetries,
		RetryBackoff:      s.RetryBackoff,
		RequestsPerSecond: s.RequestsPerSecond,
		UserAgent:         s.UserAgent,
	}
}

// TargetConfig is the destination database plus table settings.
type TargetConfig struct {
	dbconfig.TargetConfig `yaml:",inline"`
	Table                 string `yaml:"table"`
	ChunkSize             int    `yaml:"chunk_size"`
	MaxConns              int    `yaml:"max_conns"`
}

// TransformConfig configures the transform core.
type TransformConfig struct {
	Schema           SchemaColumns `yaml:"schema"`
	BusinessKey      string        `yaml:"business_key"`
	CanonicalizeKeys *bool         `yaml:"canonicalize_keys"`
	Extras           string        `yaml:"extras"` // retain (default) or discard
	CriticalFields   []string      `yaml:"critical_fields"`
}

// TargetSchema returns the configured schema.
func (t TransformConfig) TargetSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column(t.Schema)}
}

// Canonicalize reports whether incoming field names are canonicalized.
func (t TransformConfig) Canonicalize() bool {
	return t.CanonicalizeKeys == nil || *t.CanonicalizeKeys
}

// LoadConfig configures the load step.
type LoadConfig struct {
	Mode       string `yaml:"mode"` // append (default) or upsert
	ReportFile string `yaml:"report_file"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	// Dir holds history.db. Empty disables run history.
	Dir string `yaml:"dir"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// SchemaColumns is the Target Schema as declared in YAML. It accepts an
// ordered mapping of column name to type (or to {type, size}), or a list of
// {name, type, size}. Declaration order is kept.
type SchemaColumns []schema.Column

// UnmarshalYAML walks the node directly because decoding into a Go map
// would lose the column order.
func (s *SchemaColumns) UnmarshalYAML(node *yaml.Node) error {
	var cols []schema.Column
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&cols); err != nil {
			return err
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			col := schema.Column{Name: key.Value}
			switch val.Kind {
			case yaml.ScalarNode:
				col.Type = val.Value
			case yaml.MappingNode:
				var spec struct {
					Type string `yaml:"type"`
					Size int    `yaml:"size"`
				}
				if err := val.Decode(&spec); err != nil {
					return fmt.Errorf("schema column %s: %w", key.Value, err)
				}
				col.Type, col.Size = spec.Type, spec.Size
			default:
				return fmt.Errorf("schema column %s: line %d: expected a type name or a mapping", key.Value, val.Line)
			}
			cols = append(cols, col)
		}
	default:
		return fmt.Errorf("line %d: schema must be a mapping or a list", node.Line)
	}
	*s = cols
	return nil
}

// Default returns the configuration of the deployed job.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			SearchURL:    DefaultSearchURL,
			Dataset:      DefaultDataset,
			APIStyle:     string(extract.StyleRecords),
			PageSize:     DefaultPageSize,
			Timeout:      120 * time.Second,
			MaxRetries:   3,
			RetryBackoff: time.Second,
		},
		Target: TargetConfig{
			TargetConfig: dbconfig.TargetConfig{
				Type:     "mysql",
				Host:     "mysql",
				User:     "root",
				Database: DefaultDatabase,
			},
			Table:     load.DefaultTable,
			ChunkSize: driver.DefaultRowsPerBatch,
			MaxConns:  4,
		},
		Transform: TransformConfig{
			Schema:         SchemaColumns(schema.Default().Columns),
			BusinessKey:    schema.AssetID,
			Extras:         string(transform.ExtrasRetain),
			CriticalFields: append([]string(nil), quality.DefaultCriticalFields...),
		},
		Load:    LoadConfig{Mode: string(load.ModeAppend)},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path. A missing file is not an error:
// defaults and environment variables are then used alone. ${VAR} references
// in the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("Config file %s not found, using defaults and environment", path)
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applySecrets(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets fills credentials left empty from the secrets file, when one
// exists.
func (c *Config) applySecrets() error {
	sec, err := secrets.Load()
	if secrets.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.Target.Password == "" {
		c.Target.Password = sec.Database.Password
	}
	if c.Slack.WebhookURL == "" && sec.Notifications.Slack.WebhookURL != "" {
		c.Slack.WebhookURL = sec.Notifications.Slack.WebhookURL
	}
	return nil
}

// applyEnv applies the environment variables of the deployed job.
func (c *Config) applyEnv() error {
	if v, ok := util.FirstEnv("DATASET_ID"); ok {
		c.Source.Dataset = v
	}
	if v, ok := util.FirstEnv("SEARCH_URL", "DATASET_API_URL"); ok {
		c.Source.SearchURL = v
	}
	if err := envInt(&c.Source.PageSize, "EXTRACTION_BATCH_SIZE"); err != nil {
		return err
	}
	if err := envInt(&c.Source.MaxRecords, "MAX_RECORDS"); err != nil {
		return err
	}

	if v, ok := util.FirstEnv("DB_TYPE"); ok {
		c.Target.Type = v
	}
	if v, ok := util.FirstEnv("DB_HOST", "MYSQL_HOST"); ok {
		c.Target.Host = v
	}
	if err := envInt(&c.Target.Port, "DB_PORT", "MYSQL_PORT"); err != nil {
		return err
	}
	if v, ok := util.FirstEnv("DB_USER", "MYSQL_USER"); ok {
		c.Target.User = v
	}
	// An empty password is legitimate, so presence is enough.
	for _, k := range []string{"DB_PASSWORD", "MYSQL_PASSWORD"} {
		if v, ok := os.LookupEnv(k); ok {
			c.Target.Password = v
			break
		}
	}
	if v, ok := util.FirstEnv("DB_NAME", "MYSQL_DATABASE"); ok {
		c.Target.Database = v
	}
	if v, ok := util.FirstEnv("DB_PATH"); ok {
		c.Target.Path = v
	}
	if v, ok := util.FirstEnv("ETL_TABLE"); ok {
		c.Target.Table = v
	}

	if v, ok := util.FirstEnv("CRITICAL_FIELDS"); ok {
		c.Transform.CriticalFields = util.SplitCSV(v)
	}
	if v, ok := util.FirstEnv("LOAD_MODE"); ok {
		c.Load.Mode = v
	}
	if v, ok := util.FirstEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := util.FirstEnv("LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	if v, ok := util.FirstEnv("ETL_HISTORY_DIR"); ok {
		c.History.Dir = v
	}
	if v, ok := util.FirstEnv("SLACK_WEBHOOK_URL"); ok {
		c.Slack.WebhookURL = v
		c.Slack.Enabled = true
	}
	return nil
}

func envInt(dst *int, keys ...string) error {
	v, ok := util.FirstEnv(keys...)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("environment %s: %q is not an integer", strings.Join(keys, "/"), v)
	}
	*dst = n
	return nil
}

// applyDefaults fills driver specific defaults once the database type is
// known.
func (c *Config) applyDefaults() error {
	d, err := driver.Get(c.Target.Type)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	c.Target.Type = d.Name()
	defaults := d.Defaults()
	if c.Target.Port == 0 {
		c.Target.Port = defaults.Port
	}
	if c.Target.Schema == "" {
		c.Target.Schema = defaults.Schema
	}
	if c.Target.Table == "" {
		c.Target.Table = load.DefaultTable
	}
	if c.Target.ChunkSize <= 0 {
		c.Target.ChunkSize = driver.DefaultRowsPerBatch
	}
	if c.Target.MaxConns <= 0 {
		c.Target.MaxConns = 4
	}
	if c.Transform.BusinessKey == "" {
		c.Transform.BusinessKey = schema.AssetID
	}
	if c.Transform.Extras == "" {
		c.Transform.Extras = string(transform.ExtrasRetain)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Source.SearchURL == "" {
		errs = append(errs, errors.New("source.search_url is required"))
	}
	if c.Source.Dataset == "" {
		errs = append(errs, errors.New("source.dataset is required"))
	}
	if c.Source.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("source.page_size must be positive, got %d", c.Source.PageSize))
	}
	if c.Source.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("source.max_records must not be negative, got %d", c.Source.MaxRecords))
	}
	switch extract.Style(c.Source.APIStyle) {
	case "", extract.StyleRecords, extract.StyleExplore:
	default:
		errs = append(errs, fmt.Errorf("source.api_style %q is not records or explore", c.Source.APIStyle))
	}

	if err := driver.ValidateIdentifier(c.Target.Table); err != nil {
		errs = append(errs, fmt.Errorf("target.table: %w", err))
	}
	if c.Target.Type != "sqlite" && c.Target.Host == "" {
		errs = append(errs, errors.New("target.host is required"))
	}

	sch := c.Transform.TargetSchema()
	if err := sch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transform.schema: %w", err))
	} else {
		if !sch.Has(c.Transform.BusinessKey) {
			errs = append(errs, fmt.Errorf("transform.business_key %q is not a schema column", c.Transform.BusinessKey))
		}
		for _, col := range sch.Columns {
			if err := driver.ValidateIdentifier(col.Name); err != nil {
				errs = append(errs, fmt.Errorf("transform.schema: %w", err))
			}
		}
	}
	switch transform.ExtrasPolicy(c.Transform.Extras) {
	case transform.ExtrasRetain, transform.ExtrasDiscard:
	default:
		errs = append(errs, fmt.Errorf("transform.extras %q is not retain or discard", c.Transform.Extras))
	}

	if _, err := load.ParseMode(c.Load.Mode); err != nil {
		errs = append(errs, fmt.Errorf("load.mode: %w", err))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// TableSpec returns the destination table layout settings.
func (c *Config) TableSpec() load.TableSpec {
	mode, _ := load.ParseMode(c.Load.Mode)
	return load.TableSpec{
		Schema:     c.Target.Schema,
		Name:       c.Target.Table,
		KeyColumn:  c.Transform.BusinessKey,
		Unique:     mode == load.ModeUpsert,
		Properties: transform.ExtrasPolicy(c.Transform.Extras) == transform.ExtrasRetain,
	}
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.Target.TargetConfig = c.Target.TargetConfig.Redacted()
	if out.Slack.WebhookURL != "" {
		out.Slack.WebhookURL = "********"
	}
	return out
}
