package load

import (
	"github.com/johndauphine/immo-etl/internal/convert"
	"github.com/johndauphine/immo-etl/internal/derive"
	"github.com/johndauphine/immo-etl/internal/driver"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
	"github.com/johndauphine/immo-etl/internal/typemap"
)

// Bookkeeping columns filled by the database.
const (
	IDColumn        = "id"
	FetchedAtColumn = "fetched_at"
)

// DefaultTable is the destination table name.
const DefaultTable = "immobilisations_amortissements"

// derivedColumns are the storage types of the derive package's columns.
var derivedColumns = []driver.Column{
	{Name: derive.DepreciationRate, Type: typemap.Decimal, Precision: 12, Scale: 6, Nullable: true},
	{Name: derive.AcquisitionYear, Type: typemap.Integer, Nullable: true},
	{Name: derive.AcquisitionMonth, Type: typemap.Integer, Nullable: true},
	{Name: derive.AcquisitionDay, Type: typemap.Integer, Nullable: true},
	{Name: derive.AcquisitionQuarter, Type: typemap.Integer, Nullable: true},
	{Name: derive.AssetAge, Type: typemap.Decimal, Precision: 6, Scale: 2, Nullable: true},
	{Name: derive.TotalDepreciation, Type: typemap.Decimal, Precision: 14, Scale: 2, Nullable: true},
	{Name: derive.RemainingValuePct, Type: typemap.Decimal, Precision: 8, Scale: 2, Nullable: true},
}

// TableSpec describes the destination table to build.
type TableSpec struct {
	Schema    string // database schema, empty for the connection default
	Name      string
	KeyColumn string
	// Unique adds a unique constraint on KeyColumn (required for upserts).
	Unique bool
	// Properties adds the column holding fields outside the schema.
	Properties bool
}

// BuildTable lays out the persisted table: surrogate id, schema columns in
// declaration order, derived columns, properties and the load timestamp.
func BuildTable(s schema.Schema, spec TableSpec) *driver.Table {
	name := spec.Name
	if name == "" {
		name = DefaultTable
	}
	t := &driver.Table{Schema: spec.Schema, Name: name}

	t.Columns = append(t.Columns, driver.Column{Name: IDColumn, Type: typemap.BigInt, AutoIncrement: true})
	for _, c := range s.Columns {
		t.Columns = append(t.Columns, driver.Column{
			Name:     c.Name,
			Type:     convert.Canonical(c.Type),
			Size:     c.Size,
			Nullable: c.Name != spec.KeyColumn,
		})
	}
	for _, c := range derivedColumns {
		if !s.Has(c.Name) {
			t.Columns = append(t.Columns, c)
		}
	}
	if spec.Properties {
		t.Columns = append(t.Columns, driver.Column{Name: transform.PropertiesColumn, Type: typemap.JSON, Nullable: true})
	}
	t.Columns = append(t.Columns, driver.Column{Name: FetchedAtColumn, Type: typemap.Timestamp, DefaultNow: true})

	if spec.Unique && spec.KeyColumn != "" {
		t.UniqueKey = []string{spec.KeyColumn}
	}
	return t
}
