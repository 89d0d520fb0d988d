package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/pickboard/internal/ir"
)

func TestParseAction(t *testing.T) {
	for _, name := range []string{"pick", "procure", "substitute", "reset"} {
		if _, err := ParseAction(name); err != nil {
			t.Errorf("ParseAction(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseAction("teleport"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("ParseAction(teleport) error = %v, want ErrInvalidAction", err)
	}
}

func TestAction_Apply(t *testing.T) {
	base := createTestItem("L1", "42", "Apple", ir.StatePending)
	base.SubstituteName = "Pear"

	tests := []struct {
		action  Action
		sub     string
		want    ir.Flags
		wantSub string
	}{
		{ActionPick, "", ir.Flags{Picked: true}, "Pear"},
		{ActionProcure, "", ir.Flags{InProcurement: true}, ""},
		{ActionSubstitute, "Quince", ir.Flags{Substituted: true}, "Quince"},
		{ActionReset, "", ir.Flags{Pending: true}, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := tt.action.Apply(base, tt.sub)
			if err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}
			if got.Flags != tt.want || got.SubstituteName != tt.wantSub {
				t.Errorf("Apply() = %+v, want flags %+v sub %q", got, tt.want, tt.wantSub)
			}
		})
	}

	if _, err := ActionSubstitute.Apply(base, ""); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("substitute without name error = %v, want ErrInvalidAction", err)
	}
}

func TestAction_Target(t *testing.T) {
	want := map[Action]ir.StateTag{
		ActionPick:       ir.StatePicked,
		ActionProcure:    ir.StateInProcurement,
		ActionSubstitute: ir.StateSubstituted,
		ActionReset:      ir.StatePending,
	}
	for a, tag := range want {
		got, err := a.Target()
		if err != nil || got != tag {
			t.Errorf("%s.Target() = %q, %v; want %q", a, got, err, tag)
		}
	}
	if _, err := Action("teleport").Target(); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("teleport.Target() error = %v, want ErrInvalidAction", err)
	}
}

func TestApplyAction_PersistsAndLogs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedItems(t, s, createTestItem("L1", "42", "Apple", ir.StatePending))

	it, applied, err := s.ApplyAction(ctx, "ev-1", "L1", "42", ActionPick, "")
	if err != nil {
		t.Fatalf("ApplyAction() failed: %v", err)
	}
	if !applied || !it.Flags.Picked {
		t.Errorf("ApplyAction() = %+v applied=%v, want picked and applied", it, applied)
	}

	got, err := s.ReadItem(ctx, "L1", "42")
	if err != nil {
		t.Fatalf("ReadItem() failed: %v", err)
	}
	if got != it {
		t.Errorf("stored item = %+v, want %+v", got, it)
	}

	log, err := s.Transitions(ctx, "L1")
	if err != nil {
		t.Fatalf("Transitions() failed: %v", err)
	}
	if len(log) != 1 || log[0].EventID != "ev-1" || log[0].State != ir.StatePicked || log[0].Action != ActionPick {
		t.Errorf("Transitions() = %+v, want one picked record", log)
	}
}

func TestApplyAction_ReplayedEventIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedItems(t, s, createTestItem("L1", "42", "Apple", ir.StatePending))

	if _, _, err := s.ApplyAction(ctx, "ev-1", "L1", "42", ActionPick, ""); err != nil {
		t.Fatalf("first ApplyAction() failed: %v", err)
	}
	if _, _, err := s.ApplyAction(ctx, "ev-2", "L1", "42", ActionReset, ""); err != nil {
		t.Fatalf("second ApplyAction() failed: %v", err)
	}

	// a retry of ev-1 must not pick the item again
	it, applied, err := s.ApplyAction(ctx, "ev-1", "L1", "42", ActionPick, "")
	if err != nil {
		t.Fatalf("replayed ApplyAction() failed: %v", err)
	}
	if applied {
		t.Error("replayed event reported as applied")
	}
	if !it.Flags.Pending {
		t.Errorf("replay returned %+v, want current pending item", it)
	}

	log, err := s.Transitions(ctx, "L1")
	if err != nil {
		t.Fatalf("Transitions() failed: %v", err)
	}
	if len(log) != 2 || log[0].Seq >= log[1].Seq {
		t.Errorf("Transitions() = %+v, want two records in seq order", log)
	}
}

func TestApplyAction_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedItems(t, s, createTestItem("L1", "42", "Apple", ir.StatePending))

	if _, _, err := s.ApplyAction(ctx, "ev-1", "L1", "ghost", ActionPick, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown item error = %v, want ErrNotFound", err)
	}
	if _, _, err := s.ApplyAction(ctx, "", "L1", "42", ActionPick, ""); err == nil {
		t.Error("expected error for missing event id")
	}
	if _, _, err := s.ApplyAction(ctx, "ev-2", "L1", "42", ActionSubstitute, ""); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("substitute without name error = %v, want ErrInvalidAction", err)
	}

	// failed actions leave nothing behind
	log, err := s.Transitions(ctx, "L1")
	if err != nil {
		t.Fatalf("Transitions() failed: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("Transitions() = %+v, want empty", log)
	}
}
