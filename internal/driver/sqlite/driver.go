// Package sqlite provides a file based destination backed by the pure Go
// modernc.org/sqlite engine. It is handy for local runs and tests.
// It registers itself with the driver registry on import.
package sqlite

import (
	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite databases.
type Driver struct{}

func (d *Driver) Name() string {
	return "sqlite"
}

func (d *Driver) Aliases() []string {
	return []string{"sqlite3"}
}

func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		MaxParams: 32766,
	}
}

func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

func (d *Driver) NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, opts)
}
