// Package record classifies raw records coming from the open data API and
// flattens them to a single field mapping.
package record

import (
	"strings"
)

// Kind is the structural shape of a raw record.
type Kind int

const (
	// Unrecognized is anything that is not a JSON object.
	Unrecognized Kind = iota
	// Wrapped is an API v1 record: {"recordid": ..., "fields": {...}}.
	Wrapped
	// Flat is a record whose top-level keys are the fields (exports, API v2.1).
	Flat
)

func (k Kind) String() string {
	switch k {
	case Wrapped:
		return "wrapped"
	case Flat:
		return "flat"
	default:
		return "unrecognized"
	}
}

// Raw is a normalized raw record.
type Raw struct {
	Kind Kind
	// Fields is never nil; it is empty for Unrecognized records.
	Fields map[string]any
}

// Classify determines the shape of a decoded JSON value.
func Classify(v any) Kind {
	m, ok := v.(map[string]any)
	if !ok {
		return Unrecognized
	}
	if _, ok := m["fields"].(map[string]any); ok {
		return Wrapped
	}
	return Flat
}

// Normalize turns a decoded JSON value into a field mapping. Wrapped records
// yield their "fields" object, flat records themselves, anything else an
// empty mapping. With canonicalize set, keys are rewritten by CanonicalName;
// on collision a key that is already canonical wins.
func Normalize(v any, canonicalize bool) Raw {
	kind := Classify(v)
	var src map[string]any
	switch kind {
	case Wrapped:
		src = v.(map[string]any)["fields"].(map[string]any)
	case Flat:
		src = v.(map[string]any)
	default:
		return Raw{Kind: Unrecognized, Fields: map[string]any{}}
	}

	fields := make(map[string]any, len(src))
	if !canonicalize {
		for k, val := range src {
			fields[k] = val
		}
		return Raw{Kind: kind, Fields: fields}
	}

	for k, val := range src {
		name := CanonicalName(k)
		if _, taken := fields[name]; taken && k != name {
			continue
		}
		fields[name] = val
	}
	return Raw{Kind: kind, Fields: fields}
}

var nameReplacer = strings.NewReplacer(" ", "_", "-", "_")

// CanonicalName lowercases a field name and replaces spaces and hyphens with
// underscores. It is idempotent.
func CanonicalName(name string) string {
	return nameReplacer.Replace(strings.ToLower(name))
}
