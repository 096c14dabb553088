// Package transform converts raw API records into a typed table following
// the Target Schema.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/johndauphine/immo-etl/internal/convert"
	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/record"
	"github.com/johndauphine/immo-etl/internal/schema"
)

// PropertiesColumn is where fields outside the schema are kept.
const PropertiesColumn = "properties"

// ErrMalformedRecord is returned for records that are not JSON objects.
var ErrMalformedRecord = errors.New("malformed record")

// ExtrasPolicy decides what happens to fields that are not in the schema.
type ExtrasPolicy string

const (
	ExtrasRetain  ExtrasPolicy = "retain"
	ExtrasDiscard ExtrasPolicy = "discard"
)

// Options configures a Transformer.
type Options struct {
	Schema   schema.Schema
	Registry *convert.Registry // default: convert.NewRegistry()
	// KeyColumn is the business key; it must be part of the schema.
	KeyColumn string
	// Canonicalize rewrites incoming field names with record.CanonicalName.
	Canonicalize bool
	Extras       ExtrasPolicy // default: ExtrasRetain
	// NewKey generates surrogate keys (default: random UUID).
	NewKey func() string
}

// Transformer converts records. It holds no mutable state and can be reused
// across batches.
type Transformer struct {
	schema       schema.Schema
	columns      []string
	types        []string
	converters   []convert.Func
	keyIdx       int
	canonicalize bool
	extras       ExtrasPolicy
	newKey       func() string
}

// New builds a Transformer.
func New(opts Options) (*Transformer, error) {
	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}
	keyIdx := opts.Schema.Index(opts.KeyColumn)
	if keyIdx < 0 {
		return nil, fmt.Errorf("business key %q is not a schema column", opts.KeyColumn)
	}
	reg := opts.Registry
	if reg == nil {
		reg = convert.NewRegistry()
	}
	extras := opts.Extras
	switch extras {
	case "":
		extras = ExtrasRetain
	case ExtrasRetain, ExtrasDiscard:
	default:
		return nil, fmt.Errorf("invalid extras policy %q (use retain or discard)", extras)
	}
	newKey := opts.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}

	t := &Transformer{
		schema:       opts.Schema,
		columns:      opts.Schema.Names(),
		types:        make([]string, len(opts.Schema.Columns)),
		converters:   make([]convert.Func, len(opts.Schema.Columns)),
		keyIdx:       keyIdx,
		canonicalize: opts.Canonicalize,
		extras:       extras,
		newKey:       newKey,
	}
	for i, c := range opts.Schema.Columns {
		if !reg.Known(c.Type) {
			logging.Warn("Column %s declares unknown type %q, converting as string (known: %s)",
				c.Name, c.Type, strings.Join(reg.Types(), ", "))
		}
		t.converters[i] = reg.Lookup(c.Type)
		t.types[i] = convert.Canonical(c.Type)
	}
	return t, nil
}

// Columns returns the output column names in schema order.
func (t *Transformer) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Result is the outcome of transforming one record: either a row or an error.
type Result struct {
	Index        int
	Row          Row
	GeneratedKey bool
	// Invalid lists columns whose raw value was present but unconvertible.
	Invalid []string
	Err     *RecordError
}

// OK reports whether the record produced a row.
func (r Result) OK() bool {
	return r.Err == nil
}

// Record converts one raw record. A null or blank business key is replaced by
// a surrogate key; the returned bool reports whether that happened.
func (t *Transformer) Record(v any) (Row, bool, error) {
	res := t.record(0, v)
	if res.Err != nil {
		return Row{}, false, res.Err.Cause
	}
	return res.Row, res.GeneratedKey, nil
}

func (t *Transformer) record(index int, v any) (res Result) {
	res.Index = index
	defer func() {
		if p := recover(); p != nil {
			res = Result{Index: index, Err: &RecordError{Index: index, Cause: fmt.Errorf("panic: %v", p)}}
		}
	}()

	raw := record.Normalize(v, t.canonicalize)
	if raw.Kind == record.Unrecognized {
		res.Err = &RecordError{Index: index, Cause: fmt.Errorf("%w: expected an object, got %T", ErrMalformedRecord, v)}
		return res
	}

	values := make([]any, len(t.columns))
	for i, name := range t.columns {
		in, present := raw.Fields[name]
		values[i] = t.converters[i](in)
		if present && values[i] == nil && !isBlank(in) {
			res.Invalid = append(res.Invalid, name)
		}
	}
	if values[t.keyIdx] == nil {
		values[t.keyIdx] = t.newKey()
		res.GeneratedKey = true
	}
	res.Row = Row{Values: values}

	if t.extras == ExtrasRetain {
		for k, val := range raw.Fields {
			if t.schema.Has(k) {
				continue
			}
			if res.Row.Extra == nil {
				res.Row.Extra = make(map[string]any)
			}
			res.Row.Extra[k] = val
		}
	}
	return res
}

// Results converts every record and returns one Result per input, in order.
func (t *Transformer) Results(records []any) []Result {
	out := make([]Result, len(records))
	for i, v := range records {
		out[i] = t.record(i, v)
	}
	return out
}

// Batch converts a batch of raw records. Failing records are counted in the
// report and left out of the table; they never stop the batch.
func (t *Transformer) Batch(records []any) (*Table, *Report) {
	table := &Table{
		Columns: t.Columns(),
		Types:   append([]string(nil), t.types...),
		Rows:    make([]Row, 0, len(records)),
	}
	report := NewReport(t.columns)
	report.Total = len(records)

	for _, res := range t.Results(records) {
		if !res.OK() {
			logging.Debug("Skipping %v", res.Err)
			report.addError(res.Err)
			continue
		}
		table.Rows = append(table.Rows, res.Row)
		report.Converted++
		if res.GeneratedKey {
			report.GeneratedKeys++
		}
		for _, c := range res.Invalid {
			report.Invalid[c]++
		}
		for i, v := range res.Row.Values {
			if v == nil {
				report.Missing[t.columns[i]]++
			}
		}
	}
	return table, report
}

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return convert.ToString(s) == nil
	case float64:
		return math.IsNaN(s)
	}
	return false
}
