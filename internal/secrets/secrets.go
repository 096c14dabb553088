// Package secrets loads credentials kept outside the run configuration.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecretsDir is the default directory for secrets
	DefaultSecretsDir = ".secrets"
	// DefaultSecretsFile is the default filename for secrets
	DefaultSecretsFile = "immo-etl.yaml"
	// SecretsFileEnvVar allows overriding the secrets file location
	SecretsFileEnvVar = "IMMO_ETL_SECRETS_FILE"
	// SecureFileMode is the permission mode for the secrets file
	SecureFileMode = 0600
)

// Config represents the complete secrets file.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// DatabaseConfig holds target database credentials.
type DatabaseConfig struct {
	Password string `yaml:"password,omitempty"`
}

// NotificationsConfig holds notification credentials.
type NotificationsConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig holds the Slack incoming webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// GetSecretsPath returns the path to the secrets file.
// Checks IMMO_ETL_SECRETS_FILE env var first, then falls back to
// ~/.secrets/immo-etl.yaml.
func GetSecretsPath() string {
	if envPath := os.Getenv(SecretsFileEnvVar); envPath != "" {
		return envPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultSecretsDir, DefaultSecretsFile)
	}
	return filepath.Join(homeDir, DefaultSecretsDir, DefaultSecretsFile)
}

// Load reads the secrets file at GetSecretsPath.
func Load() (*Config, error) {
	return LoadFile(GetSecretsPath())
}

// LoadFile reads a secrets file. It returns a *NotFoundError when the file
// does not exist and refuses files readable by other users.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	// Check file permissions (should be 0600 or more restrictive)
	info, err := os.Stat(path)
	if err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			return nil, fmt.Errorf("secrets file %s has insecure permissions (%04o). "+
				"Other users can read your credentials. Run: chmod 600 %s", path, mode, path)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return &config, nil
}

// NotFoundError is returned when the secrets file doesn't exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secrets file not found: %s", e.Path)
}

// IsNotFound reports whether err means that no secrets file exists.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// GenerateTemplate returns a template secrets file.
func GenerateTemplate() string {
	return `# immo-etl secrets
# Keep this file out of version control and readable only by you (chmod 600).
# Values here fill in credentials left empty in config.yaml; environment
# variables still take precedence.

database:
  password: ""

notifications:
  slack:
    webhook_url: ""
`
}
