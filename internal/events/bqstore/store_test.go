package bqstore

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgbigquery "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubInserter struct {
	mu    sync.Mutex
	errs  []error
	calls int
	rows  [][]any
}

func (s *stubInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.rows = append(s.rows, rows)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type sliceIterator struct {
	rows []readRow
}

func (it *sliceIterator) Next(dst any) error {
	if len(it.rows) == 0 {
		return iterator.Done
	}
	*(dst.(*readRow)) = it.rows[0]
	it.rows = it.rows[1:]
	return nil
}

type stubRunner struct {
	sql         string
	params      []cbigquery.QueryParameter
	hadDeadline bool
	rows        []readRow
	err         error
}

func (r *stubRunner) Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (rowIterator, error) {
	r.sql = sql
	r.params = params
	_, r.hadDeadline = ctx.Deadline()
	if r.err != nil {
		return nil, r.err
	}
	return &sliceIterator{rows: r.rows}, nil
}

func newTestStore(t *testing.T, ins tableInserter, runner queryRunner) *Store {
	t.Helper()
	s, err := newStore(ins, runner, "`proj.zabardoo.behavior_events`", Config{
		Table:           "behavior_events",
		QueryTimeout:    time.Second,
		Retry:           RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
		BreakerFailures: 2,
	}, nil)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	return s
}

func sampleEvent() events.Event {
	return events.Event{
		ID:         uuid.MustParse("7d5c9b7e-7f3a-4d1e-9a57-2f0c1f7d9e11"),
		UserID:     "u-1",
		SessionID:  "s-1",
		Type:       enums.EventTypeBusiness,
		Name:       "business_purchase",
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Properties: map[string]any{"amount": "499.00"},
		Context:    events.Context{Platform: "telegram"},
		Metadata:   events.Metadata{SchemaVersion: events.SchemaVersion},
	}
}

func TestAppendBatchUsesEventIDAsInsertID(t *testing.T) {
	ins := &stubInserter{}
	store := newTestStore(t, ins, &stubRunner{})

	if err := store.AppendBatch(context.Background(), []events.Event{sampleEvent()}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if ins.calls != 1 || len(ins.rows[0]) != 1 {
		t.Fatalf("expected one insert of one row, got %d calls", ins.calls)
	}
	saver, ok := ins.rows[0][0].(*cbigquery.StructSaver)
	if !ok {
		t.Fatalf("expected struct saver, got %T", ins.rows[0][0])
	}
	if saver.InsertID != "7d5c9b7e-7f3a-4d1e-9a57-2f0c1f7d9e11" {
		t.Fatalf("unexpected insert id %s", saver.InsertID)
	}
	row := saver.Struct.(eventRow)
	if !row.Properties.Valid || row.Properties.JSONVal != `{"amount":"499.00"}` {
		t.Fatalf("unexpected properties %+v", row.Properties)
	}
	if !row.Platform.Valid || row.Device.Valid {
		t.Fatalf("expected platform set and device null, got %+v %+v", row.Platform, row.Device)
	}
}

func TestAppendBatchRetriesTransientErrors(t *testing.T) {
	ins := &stubInserter{errs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	store := newTestStore(t, ins, &stubRunner{})

	if err := store.Append(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if ins.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", ins.calls)
	}
}

func TestAppendBatchFailsFastOnPermanentError(t *testing.T) {
	ins := &stubInserter{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	store := newTestStore(t, ins, &stubRunner{})

	err := store.Append(context.Background(), sampleEvent())
	if !pkgerrors.IsCode(err, pkgerrors.CodeFlush) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if ins.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", ins.calls)
	}
}

func TestWriteBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	permanent := &googleapi.Error{Code: http.StatusForbidden}
	ins := &stubInserter{errs: []error{permanent, permanent, permanent}}
	store := newTestStore(t, ins, &stubRunner{})
	ctx := context.Background()

	_ = store.Append(ctx, sampleEvent())
	_ = store.Append(ctx, sampleEvent())
	err := store.Append(ctx, sampleEvent())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if ins.calls != 2 {
		t.Fatalf("expected breaker to short-circuit the third call, got %d calls", ins.calls)
	}
}

func TestQueryBuildsDedupedParameterizedSQL(t *testing.T) {
	e := sampleEvent()
	runner := &stubRunner{rows: []readRow{{
		EventID:        e.ID.String(),
		UserID:         "u-1",
		SessionID:      cbigquery.NullString{StringVal: "s-1", Valid: true},
		EventType:      "business",
		EventName:      "business_purchase",
		OccurredAt:     e.Timestamp,
		Platform:       cbigquery.NullString{StringVal: "telegram", Valid: true},
		SchemaVersion:  "1.0",
		PropertiesJSON: cbigquery.NullString{StringVal: `{"amount":"499.00"}`, Valid: true},
	}}}
	store := newTestStore(t, &stubInserter{}, runner)

	q := events.Query{
		EventNames: []string{"business_purchase"},
		Types:      []enums.EventType{enums.EventTypeError},
		UserIDs:    []string{"u-1"},
		Range:      events.DateRange{From: e.Timestamp.Add(-time.Hour), To: e.Timestamp.Add(time.Hour)},
	}
	out, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, fragment := range []string{
		"`proj.zabardoo.behavior_events`",
		"(event_name IN UNNEST(@names) OR event_type IN UNNEST(@types))",
		"user_id IN UNNEST(@users)",
		"filtered = FALSE",
		"QUALIFY ROW_NUMBER() OVER (PARTITION BY event_id ORDER BY ingested_at) = 1",
	} {
		if !strings.Contains(runner.sql, fragment) {
			t.Fatalf("expected sql to contain %q:\n%s", fragment, runner.sql)
		}
	}
	if len(runner.params) != 5 {
		t.Fatalf("expected 5 params, got %d", len(runner.params))
	}
	if !runner.hadDeadline {
		t.Fatal("expected query to run under a deadline")
	}
	if len(out) != 1 || out[0].ID != e.ID || out[0].Properties["amount"] != "499.00" || out[0].Context.Platform != "telegram" {
		t.Fatalf("unexpected events %+v", out)
	}
}

func TestQueryWrapsDependencyErrors(t *testing.T) {
	store := newTestStore(t, &stubInserter{}, &stubRunner{err: errors.New("backend unavailable")})
	now := time.Now()
	_, err := store.Query(context.Background(), events.Query{Range: events.DateRange{From: now.Add(-time.Hour), To: now}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestQueryRejectsInvalidRange(t *testing.T) {
	store := newTestStore(t, &stubInserter{}, &stubRunner{})
	now := time.Now()
	if _, err := store.Query(context.Background(), events.Query{Range: events.DateRange{From: now, To: now}}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{&googleapi.Error{Code: http.StatusNotFound}, false},
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.InvalidArgument, "bad"), false},
		{cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}}}, true},
		{cbigquery.PutMultiError{{Errors: cbigquery.MultiError{errors.New("invalid row")}}}, false},
		{errors.New("boom"), false},
	}
	for i, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

type recordingProvisioner struct {
	spec pkgbigquery.TableSpec
}

func (p *recordingProvisioner) EnsureTable(_ context.Context, spec pkgbigquery.TableSpec) error {
	p.spec = spec
	return nil
}

func TestEnsureTablePartitionsByOccurredAt(t *testing.T) {
	s := newTestStore(t, &stubInserter{}, &stubRunner{})
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("expected no-op without provisioner, got %v", err)
	}

	prov := &recordingProvisioner{}
	s.provisioner = prov
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	if prov.spec.Name != "behavior_events" || prov.spec.PartitionField != "occurred_at" {
		t.Fatalf("unexpected spec %+v", prov.spec)
	}
	if len(prov.spec.Clustering) != 2 || prov.spec.Clustering[0] != "event_name" {
		t.Fatalf("unexpected clustering %v", prov.spec.Clustering)
	}
	found := false
	for _, f := range prov.spec.Schema {
		if f.Name == "occurred_at" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected occurred_at in the inferred schema")
	}
}
