package analytics

import (
	"net/http"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

// Cohorts builds the retention matrix for the requested acquisition/retention pair.
func Cohorts(service analytics.Service, defaults Defaults, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cfg, err := cohortConfig(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dr, err := validators.ParseDateRange(r, timeNowUTC(), defaults.Preset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		res, err := service.AnalyzeCohorts(ctx, cfg, dr)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
