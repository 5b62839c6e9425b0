package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quotaflow/quotaflow-backend/api/controllers"
	"github.com/quotaflow/quotaflow-backend/api/middleware"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/auth"
	"github.com/quotaflow/quotaflow-backend/pkg/config"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"github.com/quotaflow/quotaflow-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Redis       *redis.Client
	Metering    controllers.MeteringService
	Registry    *metering.Registry
	ReadyChecks map[string]controllers.Pinger
	Metrics     prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	ingestPolicy := middleware.NewIngestRateLimitPolicy(
		"ingest",
		cfg.RateLimit.IngestWindow,
		cfg.RateLimit.IngestLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.ReadyChecks))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/usage", func(r chi.Router) {
			r.With(
				middleware.RequireScope(auth.ScopeUsageWrite, logg),
				middleware.IngestRateLimit(ingestPolicy, params.Redis, logg),
			).Post("/events", controllers.RecordUsageEvent(params.Metering, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(auth.ScopeUsageRead, logg))
				r.Get("/{subjectID}", controllers.UsageSnapshot(params.Metering, logg))
				r.Get("/{subjectID}/history", controllers.UsageHistory(params.Metering, logg))
			})
		})

		r.With(middleware.RequireScope(auth.ScopeUsageRead, logg)).
			Get("/plans", controllers.ListPlans(params.Registry, logg))
	})

	return r
}
