package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "foo",
			expected: []string{"foo"},
		},
		{
			name:     "multiple values",
			input:    "foo,bar,baz",
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "with whitespace",
			input:    " foo , bar , baz ",
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "trailing comma",
			input:    "foo,bar,",
			expected: []string{"foo", "bar"},
		},
		{
			name:     "leading comma",
			input:    ",foo,bar",
			expected: []string{"foo", "bar"},
		},
		{
			name:     "multiple commas",
			input:    "foo,,bar",
			expected: []string{"foo", "bar"},
		},
		{
			name:     "only commas",
			input:    ",,,",
			expected: nil,
		},
		{
			name:     "only whitespace",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "whitespace between commas",
			input:    " , , ",
			expected: nil,
		},
		{
			name:     "critical field list",
			input:    "ndeg_immobilisation, date_d_acquisition , valeur_d_acquisition",
			expected: []string{"ndeg_immobilisation", "date_d_acquisition", "valeur_d_acquisition"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SplitCSV(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("IMMO_TEST_A", "")
	t.Setenv("IMMO_TEST_B", "  ")
	t.Setenv("IMMO_TEST_C", "c-value")
	t.Setenv("IMMO_TEST_D", "d-value")

	v, ok := FirstEnv("IMMO_TEST_A", "IMMO_TEST_B", "IMMO_TEST_C", "IMMO_TEST_D")
	if !ok || v != "c-value" {
		t.Errorf("FirstEnv() = %q, %v; want c-value, true", v, ok)
	}

	if _, ok := FirstEnv("IMMO_TEST_A", "IMMO_TEST_UNSET"); ok {
		t.Error("FirstEnv() should report false when no variable is set")
	}
}
