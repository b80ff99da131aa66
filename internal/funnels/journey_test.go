package funnels

import (
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events/eventstest"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func mustFunnel(t *testing.T, steps []Step, window time.Duration) Funnel {
	t.Helper()
	f, err := NewFunnel("test", steps, window)
	if err != nil {
		t.Fatalf("NewFunnel: %v", err)
	}
	return f
}

func seq(user string, names ...string) []events.Event {
	out := make([]events.Event, len(names))
	for i, n := range names {
		out[i] = eventstest.Event(user, n, t0.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func TestBuildUserJourneyConverted(t *testing.T) {
	f := mustFunnel(t, couponSteps(), time.Hour)
	j := BuildUserJourney("u1", seq("u1", "coupon_view", "noise", "coupon_click", "business_purchase"), f)

	if !j.IsConverted || j.State != enums.JourneyCompleted {
		t.Fatalf("expected converted journey, got %+v", j)
	}
	if len(j.CompletedStepIDs) != 3 || j.DropoffStepID != "" {
		t.Fatalf("unexpected steps %v dropoff %q", j.CompletedStepIDs, j.DropoffStepID)
	}
	if j.ConversionTimeMs == nil || *j.ConversionTimeMs != (3*time.Minute).Milliseconds() {
		t.Fatalf("unexpected conversion time %v", j.ConversionTimeMs)
	}
}

func TestBuildUserJourneyRequiresOrder(t *testing.T) {
	f := mustFunnel(t, couponSteps(), time.Hour)
	j := BuildUserJourney("u1", seq("u1", "coupon_click", "coupon_view", "business_purchase"), f)

	if j.IsConverted {
		t.Fatal("a click before the view must not count")
	}
	if j.DropoffStepID != "step_2" || j.State != enums.JourneyDroppedOff {
		t.Fatalf("expected dropoff at click, got %q %s", j.DropoffStepID, j.State)
	}
	if len(j.CompletedStepIDs) != 1 || j.Reached != 1 {
		t.Fatalf("completed steps must be a prefix, got %v", j.CompletedStepIDs)
	}
}

func TestBuildUserJourneyNotStarted(t *testing.T) {
	f := mustFunnel(t, couponSteps(), time.Hour)
	j := BuildUserJourney("u1", seq("u1", "coupon_click"), f)
	if j.State != enums.JourneyNotStarted || j.Start != nil || j.DropoffStepID != "step_1" {
		t.Fatalf("unexpected journey %+v", j)
	}
}

func TestBuildUserJourneyWindowBoundsWholeJourney(t *testing.T) {
	f := mustFunnel(t, couponSteps(), 2*time.Minute)
	evts := seq("u1", "coupon_view", "coupon_click", "noise", "business_purchase")

	j := BuildUserJourney("u1", evts, f)
	if j.IsConverted {
		t.Fatal("purchase 3 minutes after start must fall outside a 2 minute window")
	}
	if j.DropoffStepID != "step_3" {
		t.Fatalf("expected dropoff at purchase, got %q", j.DropoffStepID)
	}
}

func TestBuildUserJourneySkipsOptionalStep(t *testing.T) {
	steps := couponSteps()
	steps[2].Required = false // click
	f := mustFunnel(t, steps, time.Hour)

	j := BuildUserJourney("u1", seq("u1", "coupon_view", "business_purchase"), f)
	if !j.IsConverted {
		t.Fatalf("optional click should be skipped, got %+v", j)
	}
	if len(j.CompletedStepIDs) != 2 || j.Reached != 3 {
		t.Fatalf("unexpected progress %v reached=%d", j.CompletedStepIDs, j.Reached)
	}
}

func TestSettleKeepsOpenJourneysInStep(t *testing.T) {
	f := mustFunnel(t, couponSteps(), time.Hour)
	j := BuildUserJourney("u1", seq("u1", "coupon_view"), f)

	open := j
	open.Settle(t0.Add(10*time.Minute), f.TimeWindow)
	if open.State != enums.JourneyInStep {
		t.Fatalf("expected in_step while the window is open, got %s", open.State)
	}
	closed := j
	closed.Settle(t0.Add(2*time.Hour), f.TimeWindow)
	if closed.State != enums.JourneyDroppedOff {
		t.Fatalf("expected dropped_off after the window, got %s", closed.State)
	}
}
