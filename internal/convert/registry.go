package convert

import (
	"sort"
	"strings"

	"github.com/johndauphine/immo-etl/internal/schema"
)

// Registry maps declared type names to converters.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a registry with the built-in converters. "int" and
// "float" are aliases of "integer" and "decimal".
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register(schema.TypeDate, ToDate)
	r.Register(schema.TypeInteger, ToInteger)
	r.Register("int", ToInteger)
	r.Register(schema.TypeDecimal, ToDecimal)
	r.Register("float", ToDecimal)
	r.Register(schema.TypeString, ToString)
	r.Register(schema.TypeText, ToText)
	return r
}

// Register adds or replaces the converter for a type name. Names are
// case-insensitive.
func (r *Registry) Register(name string, f Func) {
	r.funcs[strings.ToLower(name)] = f
}

// Known reports whether a converter is registered under the name.
func (r *Registry) Known(name string) bool {
	_, ok := r.funcs[strings.ToLower(name)]
	return ok
}

// Lookup returns the converter for a type name, falling back to the string
// converter for unknown names.
func (r *Registry) Lookup(name string) Func {
	if f, ok := r.funcs[strings.ToLower(name)]; ok {
		return f
	}
	return ToString
}

// Canonical resolves aliases to the semantic type used for storage.
func Canonical(name string) string {
	switch strings.ToLower(name) {
	case schema.TypeDate:
		return schema.TypeDate
	case schema.TypeInteger, "int":
		return schema.TypeInteger
	case schema.TypeDecimal, "float":
		return schema.TypeDecimal
	case schema.TypeText:
		return schema.TypeText
	default:
		return schema.TypeString
	}
}

// Types lists the registered type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
