// Package schema declares the Target Schema: the ordered set of output
// columns and the semantic type each one is converted to.
package schema

import (
	"fmt"
	"strings"
)

// Semantic types understood by the converter registry.
const (
	TypeString  = "string"
	TypeText    = "text"
	TypeDate    = "date"
	TypeInteger = "integer"
	TypeDecimal = "decimal"
)

// Column names of the fixed-asset depreciation dataset.
const (
	AssetID             = "ndeg_immobilisation"
	Publication         = "publication"
	Collectivite        = "collectivite"
	Nature              = "nature"
	AcquisitionDate     = "date_d_acquisition"
	Designation         = "designation_des_ensembles"
	AcquisitionValue    = "valeur_d_acquisition"
	DepreciationYears   = "duree_amort"
	PriorDepreciation   = "cumul_amort_anterieurs"
	OpeningNetBookValue = "vnc_debut_exercice"
	PeriodDepreciation  = "amort_exercice"
	ClosingNetBookValue = "vnc_fin_exercice"
)

// Column is one declared output column.
type Column struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	// Size is the storage length for string columns (0 = engine default).
	Size int `yaml:"size,omitempty" json:"size,omitempty"`
}

// Schema is an ordered list of columns. Order is significant: transformed
// tables always expose their columns in this order.
type Schema struct {
	Columns []Column
}

// Default returns the schema of the immobilisations dataset.
func Default() Schema {
	return Schema{Columns: []Column{
		{Name: AssetID, Type: TypeString, Size: 64},
		{Name: Publication, Type: TypeString, Size: 100},
		{Name: Collectivite, Type: TypeString, Size: 80},
		{Name: Nature, Type: TypeString, Size: 80},
		{Name: AcquisitionDate, Type: TypeDate},
		{Name: Designation, Type: TypeText},
		{Name: AcquisitionValue, Type: TypeDecimal},
		{Name: DepreciationYears, Type: "int"},
		{Name: PriorDepreciation, Type: TypeDecimal},
		{Name: OpeningNetBookValue, Type: TypeDecimal},
		{Name: PeriodDepreciation, Type: TypeDecimal},
		{Name: ClosingNetBookValue, Type: TypeDecimal},
	}}
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema declares the named column.
func (s Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// Validate checks that the schema is non-empty and has unique, non-blank
// column names. Types are not checked: unknown types fall back to string.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema column %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("schema column %q declared twice", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
