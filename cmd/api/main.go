package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quotaflow/quotaflow-backend/api/controllers"
	"github.com/quotaflow/quotaflow-backend/api/routes"
	"github.com/quotaflow/quotaflow-backend/internal/audit"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/bigquery"
	"github.com/quotaflow/quotaflow-backend/pkg/config"
	"github.com/quotaflow/quotaflow-backend/pkg/db"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"github.com/quotaflow/quotaflow-backend/pkg/metrics"
	"github.com/quotaflow/quotaflow-backend/pkg/migrate"
	"github.com/quotaflow/quotaflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	timezone, err := time.LoadLocation(cfg.Metering.Timezone)
	if err != nil {
		logg.Error(context.Background(), "invalid metering timezone", err)
		os.Exit(1)
	}

	registry, err := metering.NewRegistry(cfg.Metering.LimitOverrides)
	if err != nil {
		logg.Error(context.Background(), "failed to build plan registry", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	decisionMetrics := metrics.NewDecisionMetrics(promRegistry)

	readyChecks := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var auditSink metering.AuditSink
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		writer, err := audit.New(bqClient, audit.Config{DecisionsTable: cfg.BigQuery.DecisionsTable})
		if err != nil {
			logg.Error(context.Background(), "failed to build decision audit writer", err)
			os.Exit(1)
		}
		auditSink = writer
		readyChecks["bigquery"] = bqClient
	}

	meteringService, err := metering.NewService(metering.ServiceParams{
		Repo:       metering.NewRepository(dbClient.DB()),
		Registry:   registry,
		Logg:       logg,
		Cache:      redisClient,
		Journal:    redisClient,
		Audit:      auditSink,
		Metrics:    decisionMetrics,
		Timezone:   timezone,
		DedupTTL:   cfg.Metering.DedupTTL,
		JournalTTL: cfg.Metering.JournalTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create metering service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Redis:       redisClient,
			Metering:    meteringService,
			Registry:    registry,
			ReadyChecks: readyChecks,
			Metrics:     promRegistry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
