package schema

import (
	"testing"
)

func inventoryOf(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestNormalCycle(t *testing.T) {
	slots, err := Build("normal", Params{Current: "ksk_current"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(slots) != 9 {
		t.Fatalf("expected 9 slots, got %d", len(slots))
	}
	for i, s := range slots {
		if len(s.Publish) != 1 || s.Publish[0] != "ksk_current" {
			t.Fatalf("slot %d: expected publish [ksk_current], got %v", i+1, s.Publish)
		}
		if len(s.Sign) != 1 || s.Sign[0] != "ksk_current" {
			t.Fatalf("slot %d: expected sign [ksk_current], got %v", i+1, s.Sign)
		}
	}
	if err := Validate("normal", slots, inventoryOf("ksk_current")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPrePublish(t *testing.T) {
	slots, err := Build("pre-publish", Params{Current: "ksk_current", Next: "ksk_next"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(slots[0].Publish) != 1 {
		t.Fatalf("slot 1: expected only ksk_current published, got %v", slots[0].Publish)
	}
	for i := 1; i < 9; i++ {
		if len(slots[i].Publish) != 2 {
			t.Fatalf("slot %d: expected both keys published, got %v", i+1, slots[i].Publish)
		}
		if len(slots[i].Sign) != 1 || slots[i].Sign[0] != "ksk_current" {
			t.Fatalf("slot %d: expected sign by ksk_current, got %v", i+1, slots[i].Sign)
		}
	}
}

func TestRollover(t *testing.T) {
	slots, err := Build("rollover", Params{Current: "ksk_current", Next: "ksk_next"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if slots[0].Sign[0] != "ksk_current" {
		t.Fatalf("slot 1: expected sign by ksk_current, got %v", slots[0].Sign)
	}
	for i := 1; i < 9; i++ {
		if slots[i].Sign[0] != "ksk_next" {
			t.Fatalf("slot %d: expected sign by ksk_next, got %v", i+1, slots[i].Sign)
		}
		if len(slots[i].Publish) != 2 {
			t.Fatalf("slot %d: expected both keys published, got %v", i+1, slots[i].Publish)
		}
	}
}

func TestRevoke(t *testing.T) {
	slots, err := Build("revoke", Params{Current: "ksk_current", Next: "ksk_next"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(slots) != 9 {
		t.Fatalf("expected 9 slots, got %d", len(slots))
	}
	for i := 1; i < 8; i++ {
		s := slots[i]
		if len(s.Revoke) != 1 || s.Revoke[0] != "ksk_current" {
			t.Fatalf("slot %d: expected ksk_current revoked, got %v", i+1, s.Revoke)
		}
		if len(s.Sign) != 2 {
			t.Fatalf("slot %d: expected both keys signing, got %v", i+1, s.Sign)
		}
	}
	if len(slots[8].Publish) != 1 || slots[8].Publish[0] != "ksk_next" {
		t.Fatalf("slot 9: expected only ksk_next published, got %v", slots[8].Publish)
	}

	if err := Validate("revoke", slots, inventoryOf("ksk_current", "ksk_next")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPlusVariantExtendsLastSlot(t *testing.T) {
	slots, err := Build("normal+", Params{Current: "ksk_current", NumBundles: 11})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(slots) != 11 {
		t.Fatalf("expected 11 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Publish[0] != "ksk_current" {
			t.Fatalf("expected every extended slot to repeat the base pattern, got %v", s.Publish)
		}
	}
}

func TestBaseSchemaRejectsWrongBundleCount(t *testing.T) {
	_, err := Build("normal", Params{Current: "ksk_current", NumBundles: 5})
	if err == nil {
		t.Fatal("expected error for non-9 bundle count on base schema")
	}
}

func TestValidateRejectsUnresolvedIdentifier(t *testing.T) {
	slots, err := Build("normal", Params{Current: "ksk_current"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Validate("normal", slots, inventoryOf("someone_else")); err == nil {
		t.Fatal("expected SchemaViolation for unresolved identifier")
	}
}

func TestUnknownSchemaName(t *testing.T) {
	if _, err := Build("not-a-schema", Params{}); err == nil {
		t.Fatal("expected error for unknown schema name")
	}
}
