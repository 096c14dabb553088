// Package derive adds computed depreciation indicators to a transformed
// table. Each indicator is computed only when the columns it reads exist, and
// is null for rows where its inputs are null or out of range.
package derive

import (
	"math"
	"time"

	"github.com/golang-sql/civil"
	"github.com/johndauphine/immo-etl/internal/schema"
	"github.com/johndauphine/immo-etl/internal/transform"
)

// Derived column names.
const (
	DepreciationRate   = "taux_amortissement"
	AcquisitionYear    = "annee_acquisition"
	AcquisitionMonth   = "mois_acquisition"
	AcquisitionDay     = "jour_acquisition"
	AcquisitionQuarter = "trimestre_acquisition"
	AssetAge           = "age_immobilisation"
	TotalDepreciation  = "amortissement_total"
	RemainingValuePct  = "pct_valeur_restante"
)

// daysPerYear converts an age in days to years.
const daysPerYear = 365.25

// Inputs names the columns the calculator reads.
type Inputs struct {
	Duration           string `yaml:"duration"`
	AcquisitionDate    string `yaml:"acquisition_date"`
	AcquisitionValue   string `yaml:"acquisition_value"`
	PriorDepreciation  string `yaml:"prior_depreciation"`
	PeriodDepreciation string `yaml:"period_depreciation"`
	ClosingValue       string `yaml:"closing_value"`
}

// DefaultInputs returns the column names of the immobilisations dataset.
func DefaultInputs() Inputs {
	return Inputs{
		Duration:           schema.DepreciationYears,
		AcquisitionDate:    schema.AcquisitionDate,
		AcquisitionValue:   schema.AcquisitionValue,
		PriorDepreciation:  schema.PriorDepreciation,
		PeriodDepreciation: schema.PeriodDepreciation,
		ClosingValue:       schema.ClosingNetBookValue,
	}
}

// Calculator computes derived columns.
type Calculator struct {
	Inputs Inputs
	// Now is the reference time for ages (default time.Now).
	Now func() time.Time
}

// New returns a calculator over the default inputs.
func New() *Calculator {
	return &Calculator{Inputs: DefaultInputs(), Now: time.Now}
}

// Summary lists which derived columns were added.
type Summary struct {
	Added   []string
	Skipped []string
}

// Apply appends the derived columns to table in place.
func (c *Calculator) Apply(table *transform.Table) (Summary, error) {
	var sum Summary
	add := func(name, typ string, values []any) error {
		if err := table.SetColumn(name, typ, values); err != nil {
			return err
		}
		sum.Added = append(sum.Added, name)
		return nil
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	in := c.Inputs
	n := table.Len()

	if table.HasColumn(in.Duration) {
		rate := make([]any, n)
		for i := range table.Rows {
			rate[i] = depreciationRate(table.Value(i, in.Duration))
		}
		if err := add(DepreciationRate, schema.TypeDecimal, rate); err != nil {
			return sum, err
		}
	} else {
		sum.Skipped = append(sum.Skipped, DepreciationRate)
	}

	if table.HasColumn(in.AcquisitionDate) {
		year, month, day, quarter, age := make([]any, n), make([]any, n), make([]any, n), make([]any, n), make([]any, n)
		ref := civil.DateOf(now())
		for i := range table.Rows {
			d, ok := table.Value(i, in.AcquisitionDate).(civil.Date)
			if !ok {
				continue
			}
			year[i] = int64(d.Year)
			month[i] = int64(d.Month)
			day[i] = int64(d.Day)
			quarter[i] = int64((d.Month-1)/3 + 1)
			age[i] = round2(float64(ref.DaysSince(d)) / daysPerYear)
		}
		for _, col := range []struct {
			name   string
			values []any
			typ    string
		}{
			{AcquisitionYear, year, schema.TypeInteger},
			{AcquisitionMonth, month, schema.TypeInteger},
			{AcquisitionDay, day, schema.TypeInteger},
			{AcquisitionQuarter, quarter, schema.TypeInteger},
			{AssetAge, age, schema.TypeDecimal},
		} {
			if err := add(col.name, col.typ, col.values); err != nil {
				return sum, err
			}
		}
	} else {
		sum.Skipped = append(sum.Skipped, AcquisitionYear, AcquisitionMonth, AcquisitionDay, AcquisitionQuarter, AssetAge)
	}

	if table.HasColumn(in.PriorDepreciation) || table.HasColumn(in.PeriodDepreciation) {
		total := make([]any, n)
		for i := range table.Rows {
			prior, _ := number(table.Value(i, in.PriorDepreciation))
			period, _ := number(table.Value(i, in.PeriodDepreciation))
			total[i] = prior + period
		}
		if err := add(TotalDepreciation, schema.TypeDecimal, total); err != nil {
			return sum, err
		}
	} else {
		sum.Skipped = append(sum.Skipped, TotalDepreciation)
	}

	if table.HasColumn(in.ClosingValue) && table.HasColumn(in.AcquisitionValue) {
		pct := make([]any, n)
		for i := range table.Rows {
			pct[i] = remainingPct(table.Value(i, in.ClosingValue), table.Value(i, in.AcquisitionValue))
		}
		if err := add(RemainingValuePct, schema.TypeDecimal, pct); err != nil {
			return sum, err
		}
	} else {
		sum.Skipped = append(sum.Skipped, RemainingValuePct)
	}

	return sum, nil
}

func depreciationRate(v any) any {
	years, ok := number(v)
	if !ok || years <= 0 {
		return nil
	}
	return 1 / years
}

func remainingPct(closing, acquisition any) any {
	c, ok := number(closing)
	if !ok {
		return nil
	}
	a, ok := number(acquisition)
	if !ok || a <= 0 {
		return nil
	}
	return round2(c / a * 100)
}

// number reads an int64 or float64 cell; nil and NaN report false.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// round2 rounds to two decimals, halves away from zero.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
