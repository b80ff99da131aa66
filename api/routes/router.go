package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/controllers"
	analyticscontrollers "github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/controllers/analytics"
	eventcontrollers "github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/controllers/events"
	funnelcontrollers "github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/controllers/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/middleware"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	pkgredis "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
)

// Deps are the services behind the HTTP surface. Idempotency and Gatherer may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Checks      map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Collector eventcontrollers.Collector
	Profiles  eventcontrollers.ProfileWriter
	Funnels   funnelcontrollers.Definitions
	Analytics analytics.Service
	Metrics   analyticscontrollers.MetricCatalog
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Checks))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	defaults := analyticscontrollers.Defaults{
		Preset:    cfg.Analytics.DefaultPreset,
		FunnelIDs: cfg.Analytics.SnapshotFunnel,
		Metrics:   cfg.Analytics.SnapshotMetric,
	}
	limiter := middleware.NewIngestRateLimiter(cfg.Collector.IngestRate, cfg.Collector.IngestBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, logg))
			r.Use(middleware.Idempotency(d.Idempotency, cfg.Eventing.IdempotencyTTL, logg))

			r.Post("/events", eventcontrollers.Collect(d.Collector, logg))
			r.Post("/events/batch", eventcontrollers.CollectBatch(d.Collector, logg))
			r.Post("/sessions", eventcontrollers.StartSession(d.Collector, logg))
			r.Post("/sessions/{sessionID}/end", eventcontrollers.EndSession(d.Collector, logg))
		})

		r.Put("/users/{userID}/properties", eventcontrollers.PutUserProperties(d.Profiles, logg))

		r.Route("/funnels", func(r chi.Router) {
			r.Post("/", funnelcontrollers.Define(d.Funnels, logg))
			r.Get("/", funnelcontrollers.List(d.Funnels, logg))
			r.Get("/compare", funnelcontrollers.Compare(d.Analytics, defaults.Preset, logg))
			r.Get("/{funnelID}", funnelcontrollers.Get(d.Funnels, logg))
			r.Get("/{funnelID}/analysis", funnelcontrollers.Analysis(d.Analytics, defaults.Preset, logg))
		})

		r.Get("/cohorts", analyticscontrollers.Cohorts(d.Analytics, defaults, logg))

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/", analyticscontrollers.ListMetrics(d.Metrics))
			r.Get("/{metric}/forecast", analyticscontrollers.Forecast(d.Analytics, defaults, logg))
			r.Get("/{metric}/trend", analyticscontrollers.Trend(d.Analytics, defaults, logg))
			r.Get("/{metric}/growth", analyticscontrollers.Growth(d.Analytics, defaults, logg))
		})

		r.Get("/dashboard", analyticscontrollers.Dashboard(d.Analytics, defaults, logg))
	})

	return r
}
