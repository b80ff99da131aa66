package analytics

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

type MetricCatalog interface {
	Metrics() []forecast.Metric
}

// ListMetrics returns every forecastable metric definition.
func ListMetrics(catalog MetricCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, catalog.Metrics())
	}
}

func Forecast(service analytics.Service, defaults Defaults, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		metric := strings.TrimSpace(chi.URLParam(r, "metric"))
		periods, err := horizon(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		opts, err := forecastOptions(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaults.Preset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		points, err := service.Forecast(ctx, metric, dr, periods, opts)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"metric":   metric,
			"forecast": points,
		})
	}
}

func Trend(service analytics.Service, defaults Defaults, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		metric := strings.TrimSpace(chi.URLParam(r, "metric"))
		opts, err := forecastOptions(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaults.Preset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		res, err := service.AnalyzeTrend(ctx, metric, dr, opts)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func Growth(service analytics.Service, defaults Defaults, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		metric := strings.TrimSpace(chi.URLParam(r, "metric"))
		periods, err := horizon(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		opts, err := forecastOptions(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaults.Preset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		res, err := service.ProjectGrowth(ctx, metric, dr, periods, opts)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
