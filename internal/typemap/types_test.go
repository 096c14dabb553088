package typemap

import "testing"

func TestSQLType(t *testing.T) {
	tests := []struct {
		db       string
		spec     Spec
		expected string
	}{
		{"mysql", Spec{Type: String, Size: 64}, "VARCHAR(64)"},
		{"mysql", Spec{Type: String}, "VARCHAR(255)"},
		{"mysql", Spec{Type: Decimal}, "DECIMAL(14,2)"},
		{"mysql", Spec{Type: Decimal, Precision: 12, Scale: 6}, "DECIMAL(12,6)"},
		{"mysql", Spec{Type: Timestamp}, "DATETIME"},
		{"mysql", Spec{Type: "geometry"}, "VARCHAR(255)"},
		{"postgres", Spec{Type: Text}, "text"},
		{"postgres", Spec{Type: Date}, "date"},
		{"postgres", Spec{Type: JSON}, "jsonb"},
		{"postgres", Spec{Type: Decimal, Precision: 6, Scale: 2}, "numeric(6,2)"},
		{"mssql", Spec{Type: String, Size: 80}, "NVARCHAR(80)"},
		{"mssql", Spec{Type: String, Size: 8000}, "NVARCHAR(MAX)"},
		{"mssql", Spec{Type: Integer}, "INT"},
		{"mssql", Spec{Type: JSON}, "NVARCHAR(MAX)"},
		{"sqlite", Spec{Type: Decimal}, "REAL"},
		{"sqlite", Spec{Type: BigInt}, "INTEGER"},
		{"sqlite", Spec{Type: String, Size: 64}, "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.db+"/"+tt.spec.Type, func(t *testing.T) {
			got, err := SQLType(tt.db, tt.spec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("SQLType(%q, %+v) = %q, want %q", tt.db, tt.spec, got, tt.expected)
			}
		})
	}
}

func TestSQLTypeUnknownDatabase(t *testing.T) {
	if _, err := SQLType("oracle", Spec{Type: String}); err == nil {
		t.Error("expected error for unsupported database")
	}
}
