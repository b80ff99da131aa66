package analytics

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cohorts"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

const (
	defaultCohortPeriods   = 12
	defaultForecastPeriods = 4
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// Defaults are applied when a request leaves a selector empty.
type Defaults struct {
	Preset    string
	FunnelIDs []string
	Metrics   []string
}

// cohortConfig reads the cohort selectors. Unit and period problems are left to
// cohorts.NewConfig so they surface as COHORT_CONFIG_INVALID.
func cohortConfig(r *http.Request) (cohorts.Config, error) {
	q := r.URL.Query()
	unit := strings.ToLower(strings.TrimSpace(q.Get("unit")))
	if unit == "" {
		unit = string(enums.TimeUnitWeek)
	}
	periods, err := validators.ParseQueryInt(r, "periods", defaultCohortPeriods, math.MinInt32, math.MaxInt32)
	if err != nil {
		return cohorts.Config{}, err
	}
	return cohorts.NewConfig(q.Get("acquisition_event"), q.Get("retention_event"), enums.TimeUnit(unit), periods)
}

func forecastOptions(r *http.Request) (forecast.Options, error) {
	unit, err := validators.ParseTimeUnit(r, "unit")
	if err != nil {
		return forecast.Options{}, err
	}
	return forecast.Options{Unit: unit}, nil
}

func horizon(r *http.Request) (int, error) {
	return validators.ParseQueryInt(r, "periods", defaultForecastPeriods, 1, forecast.MaxHorizon)
}
