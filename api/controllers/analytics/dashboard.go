package analytics

import (
	"net/http"
	"strings"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

// Dashboard bundles funnel, cohort and metric analyses with generated insights.
// funnel and metric accept repeated or comma separated values; the cohort section
// runs only when acquisition_event is given.
func Dashboard(service analytics.Service, defaults Defaults, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaults.Preset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		periods, err := validators.ParseQueryInt(r, "forecast_periods", defaultForecastPeriods, 1, forecast.MaxHorizon)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		req := analytics.DashboardRequest{
			Range:     dr,
			FunnelIDs: validators.ParseQueryList(r, "funnel"),
			Metrics:   validators.ParseQueryList(r, "metric"),
			Periods:   periods,
		}
		if len(req.FunnelIDs) == 0 {
			req.FunnelIDs = defaults.FunnelIDs
		}
		if len(req.Metrics) == 0 {
			req.Metrics = defaults.Metrics
		}
		if strings.TrimSpace(r.URL.Query().Get("acquisition_event")) != "" {
			cfg, err := cohortConfig(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			req.Cohort = &cfg
		}

		res, err := service.Dashboard(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
