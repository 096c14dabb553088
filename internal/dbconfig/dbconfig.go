// Package dbconfig provides the database connection settings shared by the
// config and driver packages. It exists to break the import cycle between
// the two.
package dbconfig

// TargetConfig holds destination database connection settings.
type TargetConfig struct {
	Type            string `yaml:"type"` // mysql (default), postgres, mssql or sqlite
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Schema          string `yaml:"schema"`
	SSLMode         string `yaml:"ssl_mode"`          // PostgreSQL/MySQL: disable, require, verify-ca, verify-full
	TrustServerCert bool   `yaml:"trust_server_cert"` // MSSQL: trust server certificate (default: false)
	Encrypt         *bool  `yaml:"encrypt"`           // MSSQL: enable TLS encryption (default: true)
	Charset         string `yaml:"charset"`           // MySQL: connection charset (default: utf8mb4)
	// Path is the database file for sqlite; ":memory:" is accepted.
	Path string `yaml:"path"`
}

// Redacted returns a copy with the password masked, for logging.
func (c TargetConfig) Redacted() TargetConfig {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}
