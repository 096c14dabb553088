// Package mssql provides the SQL Server driver implementation.
// It registers itself with the driver registry on import.
package mssql

import (
	"github.com/johndauphine/immo-etl/internal/dbconfig"
	"github.com/johndauphine/immo-etl/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQL Server databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mssql"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlserver", "sql-server"}
}

// Defaults returns the default configuration values for SQL Server.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:   1433,
		Schema: "dbo",
		// SQL Server accepts at most 2100 parameters per request.
		MaxParams: 2000,
	}
}

// Dialect returns the SQL Server dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// NewWriter creates a new SQL Server writer.
func (d *Driver) NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, opts)
}
