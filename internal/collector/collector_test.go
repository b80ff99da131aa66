package collector

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events/eventstest"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type stubProfiles struct {
	props map[string]map[string]any
	err   error
}

func (s stubProfiles) GetUserProperties(_ context.Context, userID string) (map[string]any, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	p, ok := s.props[userID]
	return p, ok, nil
}

type harness struct {
	collector *Collector
	store     *eventstest.Store
	sessions  *sessions.MemoryStore
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, gap time.Duration, profiles stubProfiles, rules []Rule) harness {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: io.Discard})
	store := eventstest.NewStore()
	sessStore := sessions.NewMemoryStore()
	mgr, err := sessions.NewManager(sessStore, gap, logg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectorMetrics(reg)
	c, err := New(Config{
		MaxPropertiesBytes: 256,
		Buffer:             BufferConfig{BatchSize: 50, FlushInterval: time.Hour},
	}, Deps{
		Store:    store,
		Sessions: mgr,
		Profiles: profiles,
		Rules:    rules,
		Metrics:  m,
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return harness{collector: c, store: store, sessions: sessStore, registry: reg}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCollectEventRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   Input
	}{
		{"missing user", Input{EventName: "coupon_view"}},
		{"missing name", Input{UserID: "u1"}},
		{"bad name", Input{UserID: "u1", EventName: "coupon-view"}},
		{"spaces in name", Input{UserID: "u1", EventName: "coupon view"}},
		{"bad event id", Input{UserID: "u1", EventName: "coupon_view", EventID: "nope"}},
		{"properties too large", Input{UserID: "u1", EventName: "coupon_view", Properties: map[string]any{
			"blob": strings.Repeat("x", 300),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.collector.CollectEvent(ctx, tc.in)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if got := h.collector.Stats().Received; got != 0 {
		t.Fatalf("rejected events must not be buffered, got %d", got)
	}
	if got := counterValue(t, h.registry, "zb_collector_events_rejected_total", reasonInvalidName); got != 2 {
		t.Fatalf("expected 2 invalid name rejections, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		errorCode string
		props     map[string]any
		want      enums.EventType
	}{
		{"business_purchase", "", nil, enums.EventTypeBusiness},
		{"system_startup", "", nil, enums.EventTypeSystem},
		{"performance_page_load", "", nil, enums.EventTypePerformance},
		{"coupon_view", "", nil, enums.EventTypeUserAction},
		{"business_purchase", "E42", nil, enums.EventTypeError},
		{"coupon_view", "", map[string]any{"error_code": "TIMEOUT"}, enums.EventTypeError},
		{"coupon_view", "", map[string]any{"error_code": ""}, enums.EventTypeUserAction},
	}
	for _, tc := range cases {
		if got := Classify(tc.name, tc.errorCode, tc.props); got != tc.want {
			t.Fatalf("Classify(%q, %q, %v) = %s, want %s", tc.name, tc.errorCode, tc.props, got, tc.want)
		}
	}
}

func TestCollectEventEnrichesAndSessionizes(t *testing.T) {
	profiles := stubProfiles{props: map[string]map[string]any{
		"u1": {"tier": "gold", "city": "Mumbai"},
	}}
	h := newHarness(t, 30*time.Minute, profiles, nil)
	ctx := context.Background()

	first, err := h.collector.CollectEvent(ctx, Input{
		UserID:    "u1",
		EventName: "coupon_view",
		Context:   events.Context{Platform: "telegram", Source: "bot"},
		Properties: map[string]any{
			"coupon_id": "c-1",
			"user.tier": "override",
		},
	})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if first.Type != enums.EventTypeUserAction {
		t.Fatalf("expected user_action, got %s", first.Type)
	}
	if first.Properties["user.city"] != "Mumbai" {
		t.Fatalf("expected profile enrichment, got %v", first.Properties)
	}
	if first.Properties["user.tier"] != "override" {
		t.Fatalf("client properties must win over enrichment, got %v", first.Properties["user.tier"])
	}
	if first.Properties[sessionCountProperty] != 1 {
		t.Fatalf("expected session_event_count 1, got %v", first.Properties[sessionCountProperty])
	}
	if _, ok := first.Properties[sessionAgeProperty]; !ok {
		t.Fatal("expected session_age_ms")
	}
	if first.Metadata.SchemaVersion != events.SchemaVersion {
		t.Fatalf("unexpected schema version %q", first.Metadata.SchemaVersion)
	}

	second, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "business_purchase"})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected same session, got %s and %s", first.SessionID, second.SessionID)
	}
	open, err := h.sessions.OpenForUser(ctx, "u1")
	if err != nil || open == nil {
		t.Fatalf("expected open session, got %v %v", open, err)
	}
	if open.EventCount != 2 || open.ConversionCount != 1 {
		t.Fatalf("unexpected session counters %+v", open)
	}
}

func TestCollectEventSwallowsEnrichmentFailure(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{err: errors.New("redis down")}, nil)

	e, err := h.collector.CollectEvent(context.Background(), Input{UserID: "u1", EventName: "coupon_view"})
	if err != nil {
		t.Fatalf("enrichment failure must not fail collection: %v", err)
	}
	if _, ok := e.Properties[sessionAgeProperty]; !ok {
		t.Fatal("session enrichment should still apply")
	}
}

func TestCollectEventKeepsProvidedIDAndTime(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	e, err := h.collector.CollectEvent(context.Background(), Input{
		EventID:    "3f1c9a6e-8a53-4a43-9a41-1f0c7a6f0c11",
		UserID:     "u1",
		EventName:  "coupon_view",
		OccurredAt: &at,
		ErrorCode:  "E500",
	})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if e.ID.String() != "3f1c9a6e-8a53-4a43-9a41-1f0c7a6f0c11" {
		t.Fatalf("unexpected id %s", e.ID)
	}
	if !e.Timestamp.Equal(at) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp equal to input, got %v", e.Timestamp)
	}
	if e.Type != enums.EventTypeError || e.Properties[errorCodeProperty] != "E500" {
		t.Fatalf("expected error event carrying the code, got %s %v", e.Type, e.Properties)
	}
}

func TestCollectEventAppliesRules(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, DefaultRules())
	ctx := context.Background()

	e, err := h.collector.CollectEvent(ctx, Input{
		UserID:     "u1",
		EventName:  "business_cashback_earned",
		Properties: map[string]any{"amount": 7500},
	})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if e.Route != "fraud_review" || len(e.Alerts) != 1 {
		t.Fatalf("expected routed alerted event, got route=%q alerts=%v", e.Route, e.Alerts)
	}
	if got := counterValue(t, h.registry, "zb_collector_rule_alerts_total", "large_cashback_payout"); got != 1 {
		t.Fatalf("expected one alert metric, got %v", got)
	}

	internal, err := h.collector.CollectEvent(ctx, Input{
		UserID:    "u2",
		EventName: "coupon_view",
		Context:   events.Context{Source: "internal_test"},
	})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if !internal.Filtered {
		t.Fatal("expected internal traffic to be filtered")
	}
}

func TestCollectEventBatchReportsPerItem(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)

	results := h.collector.CollectEventBatch(context.Background(), []Input{
		{UserID: "u1", EventName: "coupon_view"},
		{UserID: "", EventName: "coupon_view"},
		{UserID: "u2", EventName: "business_purchase"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Error != nil || results[0].Event == nil {
		t.Fatalf("item 0 should succeed: %+v", results[0])
	}
	if !pkgerrors.IsCode(results[1].Error, pkgerrors.CodeValidation) || results[1].Event != nil {
		t.Fatalf("item 1 should fail validation: %+v", results[1])
	}
	if results[2].Error != nil || results[2].Index != 2 {
		t.Fatalf("item 2 should succeed: %+v", results[2])
	}
	if err := BatchErrors(results); err == nil || !strings.Contains(err.Error(), "item 1") {
		t.Fatalf("expected combined error naming item 1, got %v", err)
	}

	if err := h.collector.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if h.store.Len() != 2 {
		t.Fatalf("expected 2 stored events, got %d", h.store.Len())
	}
}

func TestSessionLifecycleEmitsSessionEnded(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	ctx := context.Background()

	s, err := h.collector.StartSession(ctx, "u1", events.Context{Platform: "telegram"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_view"}); err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}

	ended, err := h.collector.EndSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.End == nil || ended.DurationMs == nil || ended.Properties["event_count"] != 1 {
		t.Fatalf("expected finalized session, got %+v", ended)
	}
	if open, _ := h.sessions.OpenForUser(ctx, "u1"); open != nil {
		t.Fatalf("session should be removed from the active store")
	}

	if _, err := h.collector.EndSession(ctx, s.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for ended session, got %v", err)
	}

	if err := h.collector.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var found bool
	for _, e := range h.store.All() {
		if e.Name == SessionEndedEvent {
			found = true
			if e.SessionID != s.ID || e.Type != enums.EventTypeSystem {
				t.Fatalf("unexpected session end event %+v", e)
			}
		}
	}
	if !found {
		t.Fatal("expected a session ended event")
	}
}

func TestStartSessionRequiresUser(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	if _, err := h.collector.StartSession(context.Background(), "", events.Context{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpireIdleSessions(t *testing.T) {
	h := newHarness(t, 5*time.Millisecond, stubProfiles{}, nil)
	ctx := context.Background()

	if _, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_view"}); err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	closed, err := h.collector.ExpireIdleSessions(ctx)
	if err != nil {
		t.Fatalf("ExpireIdleSessions: %v", err)
	}
	if len(closed) != 1 || closed[0].UserID != "u1" {
		t.Fatalf("expected u1 session expired, got %+v", closed)
	}
	if got := h.collector.Stats().Received; got != 2 {
		t.Fatalf("expected event plus session end buffered, got %d", got)
	}
}

func TestCollectEventConcurrentCallersShareSession(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	ctx := context.Background()

	const callers = 200
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_view"})
			ids[i], errs[i] = e.SessionID, err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got session %s, want %s", i, ids[i], ids[0])
		}
	}
	open, err := h.sessions.ListOpen(ctx)
	if err != nil || len(open) != 1 || open[0].EventCount != callers {
		t.Fatalf("expected one open session counting every event, got %+v %v", open, err)
	}
	if err := h.collector.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := h.store.Len(); got != callers {
		t.Fatalf("expected %d stored events, got %d", callers, got)
	}
}

func TestCollectEventSessionizesByOccurredAt(t *testing.T) {
	h := newHarness(t, 30*time.Minute, stubProfiles{}, nil)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := base.Add(d)
		return &ts
	}

	first, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_view", OccurredAt: at(0)})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	second, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_click", OccurredAt: at(10 * time.Minute)})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatal("events ten minutes apart belong to one session")
	}
	if got := second.Properties[sessionAgeProperty]; got != (10 * time.Minute).Milliseconds() {
		t.Fatalf("expected session age from event time, got %v", got)
	}

	third, err := h.collector.CollectEvent(ctx, Input{UserID: "u1", EventName: "coupon_view", OccurredAt: at(2 * time.Hour)})
	if err != nil {
		t.Fatalf("CollectEvent: %v", err)
	}
	if third.SessionID == first.SessionID {
		t.Fatal("a gap longer than the inactivity limit starts a new session")
	}
}
