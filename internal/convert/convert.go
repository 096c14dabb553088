// Package convert holds the type converters applied to raw field values.
//
// Every converter is total: it accepts any decoded JSON value (or a value
// already of the target type) and returns either a value of its target type
// or nil. Missing input (nil, blank strings, NaN) always yields nil.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// Func converts one raw value. It never panics and never returns an error;
// unconvertible input yields nil.
type Func func(v any) any

// date layouts tried, in order, after the ISO prefix.
var dateLayouts = []string{
	"2/1/2006", // DD/MM/YYYY
	"1/2/2006", // MM/DD/YYYY
	"20060102", // YYYYMMDD
}

// ToDate converts to a civil.Date. Strings are parsed as ISO from their first
// ten characters, then DD/MM/YYYY, MM/DD/YYYY and YYYYMMDD.
func ToDate(v any) any {
	switch d := v.(type) {
	case nil:
		return nil
	case civil.Date:
		if !d.IsValid() {
			return nil
		}
		return d
	case time.Time:
		if d.IsZero() {
			return nil
		}
		return civil.DateOf(d)
	}

	s, ok := stringify(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// ISO dates are read from at most the first 10 characters; month and day
	// may be unpadded.
	if t, err := time.Parse("2006-1-2", s[:min(10, len(s))]); err == nil {
		return civil.DateOf(t)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t)
		}
	}
	return nil
}

// ToInteger converts to int64 by parsing a float and truncating toward zero,
// so "10.0" and 10.9 both give 10.
func ToInteger(v any) any {
	f, ok := toFloat(v, false)
	if !ok {
		return nil
	}
	t := math.Trunc(f)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return nil
	}
	return int64(t)
}

// ToDecimal converts to float64. Strings use either ',' or '.' as the decimal
// separator and may contain spaces as thousands separators.
func ToDecimal(v any) any {
	f, ok := toFloat(v, true)
	if !ok {
		return nil
	}
	return f
}

// ToString converts to a trimmed string; empty strings become nil.
func ToString(v any) any {
	s, ok := stringify(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// ToText is ToString with every run of whitespace collapsed to one space.
func ToText(v any) any {
	s, ok := stringify(v)
	if !ok {
		return nil
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	return s
}

// decimalSpaces are stripped from decimal strings ("1 000,50").
var decimalSpaces = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

func toFloat(v any, localized bool) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		s, ok := stringify(v)
		if !ok {
			return 0, false
		}
		s = strings.TrimSpace(s)
		if localized {
			s = decimalSpaces.Replace(strings.ReplaceAll(s, ",", "."))
		}
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// stringify renders a scalar as text. It reports false for values that stand
// for "missing" (nil, NaN).
func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return "", false
		}
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return stringify(float64(s))
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	case civil.Date:
		return s.String(), true
	case time.Time:
		return s.Format(time.RFC3339), true
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return fmt.Sprint(v), true
	}
}
