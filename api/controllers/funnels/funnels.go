package funnels

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	internalfunnels "github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// Definitions manages funnel definitions.
type Definitions interface {
	DefineFunnel(ctx context.Context, name string, steps []internalfunnels.Step, window time.Duration) (*internalfunnels.Funnel, error)
	GetFunnel(ctx context.Context, id string) (*internalfunnels.Funnel, error)
	ListFunnels(ctx context.Context) ([]internalfunnels.Funnel, error)
}

// Analyses runs funnel analyses; analytics.Service satisfies it.
type Analyses interface {
	AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts internalfunnels.Options) (*internalfunnels.Analysis, error)
	CompareFunnels(ctx context.Context, a, b string, dr events.DateRange) (*internalfunnels.Comparison, error)
}

type defineRequest struct {
	Name              string                 `json:"name" validate:"required,max=200"`
	Steps             []internalfunnels.Step `json:"steps" validate:"required,min=1,max=50"`
	TimeWindowSeconds int64                  `json:"time_window_seconds" validate:"required,min=1"`
}

func Define(defs Definitions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req defineRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		f, err := defs.DefineFunnel(r.Context(), req.Name, req.Steps, time.Duration(req.TimeWindowSeconds)*time.Second)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, f)
	}
}

func Get(defs Definitions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := defs.GetFunnel(r.Context(), chi.URLParam(r, "funnelID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, f)
	}
}

func List(defs Definitions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := defs.ListFunnels(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []internalfunnels.Funnel{}
		}
		responses.WriteSuccess(w, list)
	}
}

// Analysis reports step conversion and dropoffs for one funnel over from/to or a preset.
func Analysis(svc Analyses, defaultPreset string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelID := strings.TrimSpace(chi.URLParam(r, "funnelID"))
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaultPreset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		opts := internalfunnels.Options{SegmentBy: strings.TrimSpace(r.URL.Query().Get("segment_by"))}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFunnelID(ctx, funnelID)
		}
		res, err := svc.AnalyzeFunnel(ctx, funnelID, dr, opts)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// Compare runs funnels a and b over the same range.
func Compare(svc Analyses, defaultPreset string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		a := strings.TrimSpace(q.Get("a"))
		b := strings.TrimSpace(q.Get("b"))
		if a == "" || b == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "query parameters a and b are required"))
			return
		}
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaultPreset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.CompareFunnels(r.Context(), a, b, dr)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
