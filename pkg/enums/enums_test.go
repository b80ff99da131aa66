package enums

import "testing"

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType("business")
	if err != nil || got != EventTypeBusiness {
		t.Fatalf("expected business, got %q (%v)", got, err)
	}
	if _, err := ParseEventType("purchase"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if EventType("error").IsValid() != true {
		t.Fatal("expected error to be a valid event type")
	}
}

func TestParseTimeUnitIsCaseInsensitive(t *testing.T) {
	got, err := ParseTimeUnit(" Week ")
	if err != nil || got != TimeUnitWeek {
		t.Fatalf("expected week, got %q (%v)", got, err)
	}
	if _, err := ParseTimeUnit("quarter"); err == nil {
		t.Fatal("expected error for quarter")
	}
}

func TestRuleEnums(t *testing.T) {
	for _, op := range []string{"eq", "ne", "gt", "lt", "gte", "lte", "in", "contains"} {
		if _, err := ParseRuleOperator(op); err != nil {
			t.Fatalf("expected %s to parse: %v", op, err)
		}
	}
	if _, err := ParseRuleOperator("regex"); err == nil {
		t.Fatal("expected regex to be rejected")
	}
	if _, err := ParseRuleActionKind("alert"); err != nil {
		t.Fatalf("expected alert to parse: %v", err)
	}
	if RuleActionKind("drop").IsValid() {
		t.Fatal("expected drop to be invalid")
	}
}

func TestJourneyStateTerminal(t *testing.T) {
	if JourneyInStep.IsTerminal() || JourneyNotStarted.IsTerminal() {
		t.Fatal("expected non-terminal states")
	}
	if !JourneyCompleted.IsTerminal() || !JourneyDroppedOff.IsTerminal() {
		t.Fatal("expected terminal states")
	}
}

func TestParseSnapshotKind(t *testing.T) {
	if _, err := ParseSnapshotKind("cohort"); err != nil {
		t.Fatalf("expected cohort to parse: %v", err)
	}
	if _, err := ParseSnapshotKind("ledger"); err == nil {
		t.Fatal("expected ledger to be rejected")
	}
}
