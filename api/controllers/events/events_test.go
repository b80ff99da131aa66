package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/collector"
	internalevents "github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

type stubCollector struct {
	inputs  []collector.Input
	ended   string
	started string
}

func (s *stubCollector) CollectEvent(_ context.Context, in collector.Input) (internalevents.Event, error) {
	s.inputs = append(s.inputs, in)
	if in.UserID == "" {
		return internalevents.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	return internalevents.Event{ID: uuid.New(), UserID: in.UserID, Name: in.EventName}, nil
}

func (s *stubCollector) CollectEventBatch(ctx context.Context, inputs []collector.Input) []collector.BatchResult {
	out := make([]collector.BatchResult, len(inputs))
	for i, in := range inputs {
		out[i].Index = i
		e, err := s.CollectEvent(ctx, in)
		if err != nil {
			out[i].Error = err
			continue
		}
		out[i].Event = &e
	}
	return out
}

func (s *stubCollector) StartSession(_ context.Context, userID string, evCtx internalevents.Context) (*sessions.Session, error) {
	s.started = userID
	return &sessions.Session{ID: "s-1", UserID: userID, Platform: evCtx.Platform}, nil
}

func (s *stubCollector) EndSession(_ context.Context, id string) (*sessions.Session, error) {
	s.ended = id
	if id != "s-1" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
	}
	return &sessions.Session{ID: id}, nil
}

type stubProfiles struct {
	userID string
	props  map[string]any
}

func (s *stubProfiles) Put(_ context.Context, userID string, props map[string]any) error {
	s.userID = userID
	s.props = props
	return nil
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCollectCreatesEvent(t *testing.T) {
	stub := &stubCollector{}
	body := `{"user_id":"u1","event_name":"coupon_view","properties":{"coupon_id":"c1"},"context":{"platform":"telegram"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Collect(stub, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(stub.inputs) != 1 || stub.inputs[0].Context.Platform != "telegram" {
		t.Fatalf("unexpected inputs %+v", stub.inputs)
	}
}

func TestCollectRejectsMalformedBody(t *testing.T) {
	stub := &stubCollector{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"user_id":`))
	resp := httptest.NewRecorder()
	Collect(stub, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(stub.inputs) != 0 {
		t.Fatal("collector should not be called")
	}
}

func TestCollectBatchPartialFailure(t *testing.T) {
	stub := &stubCollector{}
	body := `{"events":[{"user_id":"u1","event_name":"a"},{"user_id":"","event_name":"b"},{"user_id":"u2","event_name":"c"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CollectBatch(stub, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207 got %d", resp.Code)
	}
	var payload struct {
		Data batchResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Accepted != 2 || payload.Data.Rejected != 1 {
		t.Fatalf("unexpected counts %+v", payload.Data)
	}
	failed := payload.Data.Results[1]
	if failed.Error == nil || failed.Error.Code != string(pkgerrors.CodeValidation) || failed.Event != nil {
		t.Fatalf("unexpected failed item %+v", failed)
	}
	if payload.Data.Results[2].Event == nil || payload.Data.Results[2].Event.Name != "c" {
		t.Fatalf("later items must still be collected: %+v", payload.Data.Results[2])
	}
}

func TestCollectBatchAllAccepted(t *testing.T) {
	stub := &stubCollector{}
	body := `{"events":[{"user_id":"u1","event_name":"a"}]}`
	resp := httptest.NewRecorder()
	CollectBatch(stub, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(body)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestCollectBatchRequiresEvents(t *testing.T) {
	resp := httptest.NewRecorder()
	CollectBatch(&stubCollector{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/events/batch", strings.NewReader(`{"events":[]}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestStartAndEndSession(t *testing.T) {
	stub := &stubCollector{}
	resp := httptest.NewRecorder()
	StartSession(stub, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sessions",
		strings.NewReader(`{"user_id":" u1 ","context":{"platform":"telegram"}}`)))
	if resp.Code != http.StatusCreated || stub.started != "u1" {
		t.Fatalf("unexpected start %d %q", resp.Code, stub.started)
	}

	resp = httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s-1/end", nil), "sessionID", "s-1")
	EndSession(stub, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/end", nil), "sessionID", "nope")
	EndSession(stub, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestPutUserProperties(t *testing.T) {
	profiles := &stubProfiles{}
	req := withURLParam(httptest.NewRequest(http.MethodPut, "/api/v1/users/u1/properties",
		strings.NewReader(`{"properties":{"tier":"gold"}}`)), "userID", "u1")
	resp := httptest.NewRecorder()
	PutUserProperties(profiles, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if profiles.userID != "u1" || profiles.props["tier"] != "gold" {
		t.Fatalf("unexpected write %+v", profiles)
	}
}
