package schema

import "testing"

func sampleSchema() *SourceSchema {
	return &SourceSchema{Tables: []SourceTable{
		{
			Name: "customers",
			Fields: []SourceField{
				{Name: "id", Type: "integer", IsPrimaryKey: true},
				{Name: "name", Type: "varchar(120)", Nullable: true},
			},
			EstimatedRecordCount: 1200,
		},
		{
			Name: "orders",
			Fields: []SourceField{
				{Name: "id", Type: "integer", IsPrimaryKey: true},
				{Name: "customer_id", Type: "integer"},
				{Name: "placed_at", Type: "timestamptz"},
			},
			EstimatedRecordCount: 53000,
		},
	}}
}

func TestSchemaLookups(t *testing.T) {
	s := sampleSchema()

	if s.Table("ORDERS") == nil {
		t.Fatal("Table lookup should be case-insensitive")
	}
	if s.Table("invoices") != nil {
		t.Fatal("unexpected hit for unknown table")
	}
	tab := s.Table("customers")
	if f := tab.Field("NAME"); f == nil || !f.Nullable {
		t.Fatalf("Field lookup failed: %+v", f)
	}
	if tab.Field("missing") != nil {
		t.Fatal("unexpected hit for unknown field")
	}
}

/*
TestFingerprint_Stability checks that the fingerprint ignores what it should
(row-count estimates, table order, field order) and reacts to what it must
(a type change).
*/
func TestFingerprint_Stability(t *testing.T) {
	base := sampleSchema().Fingerprint()

	t.Run("row_counts_ignored", func(t *testing.T) {
		s := sampleSchema()
		s.Tables[0].EstimatedRecordCount = 999999
		if s.Fingerprint() != base {
			t.Fatal("fingerprint must not depend on record count estimates")
		}
	})

	t.Run("table_order_ignored", func(t *testing.T) {
		s := sampleSchema()
		s.Tables[0], s.Tables[1] = s.Tables[1], s.Tables[0]
		if s.Fingerprint() != base {
			t.Fatal("fingerprint must not depend on table order")
		}
	})

	t.Run("field_order_ignored", func(t *testing.T) {
		s := sampleSchema()
		fs := s.Tables[1].Fields
		fs[0], fs[2] = fs[2], fs[0]
		if s.Fingerprint() != base {
			t.Fatal("fingerprint must not depend on field order")
		}
	})

	t.Run("type_change_detected", func(t *testing.T) {
		s := sampleSchema()
		s.Tables[0].Fields[1].Type = "integer"
		if s.Fingerprint() == base {
			t.Fatal("fingerprint must change when a field type changes")
		}
	})
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Krátký Text":   "kratky_text",
		"  Order-Date ": "order_date",
		"PČV":           "pcv",
		"total.amount":  "total_amount",
		"__x__":         "x",
		"###":           "col",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
