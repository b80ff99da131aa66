package funnels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	internalfunnels "github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
)

type stubDefinitions struct {
	window time.Duration
	steps  []internalfunnels.Step
}

func (s *stubDefinitions) DefineFunnel(_ context.Context, name string, steps []internalfunnels.Step, window time.Duration) (*internalfunnels.Funnel, error) {
	s.window = window
	s.steps = steps
	f, err := internalfunnels.NewFunnel(name, steps, window)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *stubDefinitions) GetFunnel(_ context.Context, id string) (*internalfunnels.Funnel, error) {
	return nil, pkgerrors.New(pkgerrors.CodeFunnelNotFound, "funnel not found").WithDetails(map[string]any{"funnel_id": id})
}

func (s *stubDefinitions) ListFunnels(context.Context) ([]internalfunnels.Funnel, error) {
	return nil, nil
}

type stubAnalyses struct {
	id   string
	dr   events.DateRange
	opts internalfunnels.Options
	a, b string
}

func (s *stubAnalyses) AnalyzeFunnel(_ context.Context, id string, dr events.DateRange, opts internalfunnels.Options) (*internalfunnels.Analysis, error) {
	s.id, s.dr, s.opts = id, dr, opts
	return &internalfunnels.Analysis{FunnelID: id, DateRange: dr}, nil
}

func (s *stubAnalyses) CompareFunnels(_ context.Context, a, b string, dr events.DateRange) (*internalfunnels.Comparison, error) {
	s.a, s.b, s.dr = a, b, dr
	return &internalfunnels.Comparison{Winner: "b"}, nil
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	timeNowUTC = func() time.Time { return now }
	t.Cleanup(func() { timeNowUTC = func() time.Time { return time.Now().UTC() } })
	return now
}

func TestDefineFunnel(t *testing.T) {
	defs := &stubDefinitions{}
	body := `{"name":"coupon","time_window_seconds":86400,"steps":[
		{"name":"view","event_name":"coupon_view","order":1,"required":true},
		{"name":"redeem","event_name":"coupon_redeem","order":2,"required":true}]}`
	resp := httptest.NewRecorder()
	Define(defs, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/funnels", strings.NewReader(body)))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if defs.window != 24*time.Hour || len(defs.steps) != 2 {
		t.Fatalf("unexpected definition %v %d", defs.window, len(defs.steps))
	}
}

func TestDefineFunnelRejectsMissingSteps(t *testing.T) {
	resp := httptest.NewRecorder()
	Define(&stubDefinitions{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/funnels",
		strings.NewReader(`{"name":"x","time_window_seconds":60,"steps":[]}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetFunnelNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/funnels/"+uuid.NewString(), nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("funnelID", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	resp := httptest.NewRecorder()
	Get(&stubDefinitions{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), string(pkgerrors.CodeFunnelNotFound)) {
		t.Fatalf("expected FUNNEL_NOT_FOUND body, got %s", resp.Body.String())
	}
}

func TestListFunnelsEmptyArray(t *testing.T) {
	resp := httptest.NewRecorder()
	List(&stubDefinitions{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/funnels", nil))
	if strings.TrimSpace(resp.Body.String()) != `{"data":[]}` {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestAnalysisUsesPresetAndSegment(t *testing.T) {
	now := fixedNow(t)
	svc := &stubAnalyses{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/funnels/f1/analysis?preset=7d&segment_by=context.platform", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("funnelID", "f1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	resp := httptest.NewRecorder()
	Analysis(svc, "90d", nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.id != "f1" || svc.opts.SegmentBy != "context.platform" {
		t.Fatalf("unexpected call %+v", svc)
	}
	if !svc.dr.To.Equal(now) || svc.dr.To.Sub(svc.dr.From) != 7*24*time.Hour {
		t.Fatalf("unexpected range %+v", svc.dr)
	}
}

func TestAnalysisRejectsBadRange(t *testing.T) {
	fixedNow(t)
	resp := httptest.NewRecorder()
	Analysis(&stubAnalyses{}, "90d", nil).ServeHTTP(resp,
		httptest.NewRequest(http.MethodGet, "/api/v1/funnels/f1/analysis?from=2025-06-10T00:00:00Z&to=2025-06-01T00:00:00Z", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCompareRequiresBothFunnels(t *testing.T) {
	resp := httptest.NewRecorder()
	Compare(&stubAnalyses{}, "90d", nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/funnels/compare?a=x", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	fixedNow(t)
	svc := &stubAnalyses{}
	resp = httptest.NewRecorder()
	Compare(svc, "90d", nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/funnels/compare?a=x&b=y", nil))
	if resp.Code != http.StatusOK || svc.a != "x" || svc.b != "y" {
		t.Fatalf("unexpected compare %d %+v", resp.Code, svc)
	}
}
