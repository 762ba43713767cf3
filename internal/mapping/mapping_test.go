package mapping

import (
	"testing"

	"importkit/internal/schema"
)

func testEngine(existing []Mapping) *Engine {
	source := []schema.SourceField{
		{Name: "cust_id", Type: "integer"},
		{Name: "cust_name", Type: "varchar(80)"},
		{Name: "active", Type: "boolean"},
		{Name: "created", Type: "date"},
	}
	target := TargetEntity{
		Name: "customer",
		Fields: []TargetField{
			{Name: "id", Type: "integer", Required: true},
			{Name: "name", Type: "string", Required: true},
			{Name: "score", Type: "number"},
			{Name: "since", Type: "datetime"},
		},
	}
	return NewEngine(source, target, existing)
}

func TestAdd_VerdictsAndTransform(t *testing.T) {
	e := testEngine(nil)

	t.Run("exact_no_transform", func(t *testing.T) {
		m, err := e.Add("cust_id", "id")
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if m.Compatibility != schema.Exact || m.Transform != "" {
			t.Fatalf("exact pair got %+v", m)
		}
	})

	t.Run("compatible_tagged_convert", func(t *testing.T) {
		m, err := e.Add("created", "since")
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if m.Compatibility != schema.Compatible || m.Transform != TransformConvert {
			t.Fatalf("compatible pair got %+v", m)
		}
	})

	t.Run("incompatible_stored_not_blocked", func(t *testing.T) {
		m, err := e.Add("active", "score")
		if err != nil {
			t.Fatalf("incompatible pair must still be storable: %v", err)
		}
		if m.Compatibility != schema.Incompatible {
			t.Fatalf("verdict = %q, want incompatible", m.Compatibility)
		}
	})

	t.Run("unknown_fields_rejected", func(t *testing.T) {
		if _, err := e.Add("nope", "id"); err == nil {
			t.Fatal("expected error for unknown source field")
		}
		if _, err := e.Add("cust_id", "nope"); err == nil {
			t.Fatal("expected error for unknown target field")
		}
	})
}

// Re-mapping a target replaces the existing mapping instead of duplicating.
func TestAdd_ReplacesExistingTarget(t *testing.T) {
	e := testEngine(nil)
	if _, err := e.Add("cust_id", "name"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := e.Add("cust_name", "name"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ms := e.Mappings()
	if len(ms) != 1 {
		t.Fatalf("got %d mappings, want 1 after replacement", len(ms))
	}
	if ms[0].SourceField != "cust_name" {
		t.Fatalf("replacement kept old source: %+v", ms[0])
	}
}

func TestRemoveAndAcknowledge(t *testing.T) {
	e := testEngine(nil)
	m, _ := e.Add("active", "score")

	if err := e.Acknowledge(m.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := UnacknowledgedIncompatible(e.Mappings()); len(got) != 0 {
		t.Fatalf("acknowledged mapping still flagged: %+v", got)
	}

	if err := e.Remove(m.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(e.Mappings()) != 0 {
		t.Fatal("mapping not removed")
	}
	if err := e.Remove(m.ID); err == nil {
		t.Fatal("expected error removing unknown id")
	}
}

func TestRequiredMissing(t *testing.T) {
	e := testEngine(nil)
	missing := e.RequiredMissing()
	if len(missing) != 2 {
		t.Fatalf("got %d missing required fields, want 2", len(missing))
	}

	if _, err := e.Add("cust_id", "id"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	missing = e.RequiredMissing()
	if len(missing) != 1 || missing[0].Name != "name" {
		t.Fatalf("after mapping id, missing = %+v", missing)
	}
}

func TestUnacknowledgedIncompatible_FiltersVerdicts(t *testing.T) {
	ms := []Mapping{
		{ID: "a", Compatibility: schema.Exact},
		{ID: "b", Compatibility: schema.Incompatible},
		{ID: "c", Compatibility: schema.Incompatible, Acknowledged: true},
		{ID: "d", Compatibility: schema.Compatible},
	}
	got := UnacknowledgedIncompatible(ms)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("got %+v, want only mapping b", got)
	}
}
