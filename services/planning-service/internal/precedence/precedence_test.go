package precedence

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func record(id string, validated bool, updated time.Duration) model.RecurringRecord {
	return model.RecurringRecord{
		ID:        id,
		PersonID:  "p1",
		Weekday:   model.Tuesday,
		Slot:      model.SlotMorning,
		Status:    model.StatusAvailable,
		Validated: validated,
		CreatedAt: base,
		UpdatedAt: base.Add(updated),
	}
}

func TestPick_Empty(t *testing.T) {
	if _, ok := Pick(nil); ok {
		t.Fatal("expected no choice for an empty group")
	}
}

func TestPick_MostRecentWhenNoneValidated(t *testing.T) {
	older := record("a", false, time.Hour)
	newer := record("b", false, 2*time.Hour)

	for _, in := range [][]model.RecurringRecord{{older, newer}, {newer, older}} {
		choice, ok := Pick(in)
		if !ok {
			t.Fatal("expected a choice")
		}
		if choice.Record.ID != "b" {
			t.Fatalf("expected newest record b, got %s", choice.Record.ID)
		}
		if choice.Ambiguous() {
			t.Fatal("expected no ambiguity without validated rows")
		}
	}
}

func TestPick_ValidatedBeatsNewer(t *testing.T) {
	validatedOld := record("old", true, 0)
	fresh := record("fresh", false, 48*time.Hour)

	choice, _ := Pick([]model.RecurringRecord{fresh, validatedOld})
	if choice.Record.ID != "old" {
		t.Fatalf("expected validated record, got %s", choice.Record.ID)
	}
	if choice.Candidates != 2 || choice.Validated != 1 {
		t.Fatalf("unexpected counts: %+v", choice)
	}
}

func TestPick_MultipleValidatedIsAmbiguous(t *testing.T) {
	v1 := record("v1", true, time.Hour)
	v2 := record("v2", true, 3*time.Hour)
	u := record("u", false, 5*time.Hour)

	choice, _ := Pick([]model.RecurringRecord{v1, u, v2})
	if choice.Record.ID != "v2" {
		t.Fatalf("expected most recent validated record v2, got %s", choice.Record.ID)
	}
	if !choice.Ambiguous() {
		t.Fatal("expected ambiguity with two validated rows")
	}
}

func TestPick_TiesAreOrderIndependent(t *testing.T) {
	a := record("a", false, time.Hour)
	b := record("b", false, time.Hour)
	c := record("c", false, time.Hour)
	c.CreatedAt = base.Add(-time.Hour)

	orders := [][]model.RecurringRecord{{a, b, c}, {c, b, a}, {b, c, a}}
	for _, in := range orders {
		choice, _ := Pick(in)
		if choice.Record.ID != "b" {
			t.Fatalf("expected b for order %v, got %s", ids(in), choice.Record.ID)
		}
	}
}

func TestBuildPlan_OneKeeperPerKey(t *testing.T) {
	tueA := record("t1", false, time.Hour)
	tueB := record("t2", true, 0)
	tueC := record("t3", false, 2*time.Hour)
	wed := record("w1", false, 0)
	wed.Weekday = model.Wednesday
	other := record("o1", false, 0)
	other.PersonID = "p2"

	plan := BuildPlan([]model.RecurringRecord{tueA, wed, tueB, other, tueC})
	if len(plan.Keep) != 3 {
		t.Fatalf("expected 3 keepers, got %d", len(plan.Keep))
	}
	if len(plan.Drop) != 2 || plan.Drop[0] != "t1" || plan.Drop[1] != "t3" {
		t.Fatalf("expected drop [t1 t3], got %v", plan.Drop)
	}
	for _, k := range plan.Keep {
		if k.Weekday == model.Tuesday && k.PersonID == "p1" && k.ID != "t2" {
			t.Fatalf("expected validated t2 kept for tuesday, got %s", k.ID)
		}
	}
	if len(plan.Ambiguous) != 0 {
		t.Fatalf("expected no ambiguous keys, got %d", len(plan.Ambiguous))
	}
	if plan.DuplicateKeys != 1 {
		t.Fatalf("expected 1 duplicated key, got %d", plan.DuplicateKeys)
	}
}

func TestBuildPlan_ConvergedInputDropsNothing(t *testing.T) {
	plan := BuildPlan([]model.RecurringRecord{record("a", true, 0)})
	if len(plan.Drop) != 0 {
		t.Fatalf("expected nothing to drop, got %v", plan.Drop)
	}
	if len(BuildPlan(nil).Keep) != 0 {
		t.Fatal("expected empty plan for empty input")
	}
}

func ids(in []model.RecurringRecord) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		out = append(out, r.ID)
	}
	return out
}
