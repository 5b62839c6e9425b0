package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quotaflow/quotaflow-backend/internal/audit"
	usageconsumer "github.com/quotaflow/quotaflow-backend/internal/consumers/usage"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/bigquery"
	"github.com/quotaflow/quotaflow-backend/pkg/config"
	"github.com/quotaflow/quotaflow-backend/pkg/db"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"github.com/quotaflow/quotaflow-backend/pkg/metrics"
	"github.com/quotaflow/quotaflow-backend/pkg/migrate"
	"github.com/quotaflow/quotaflow-backend/pkg/pubsub"
	"github.com/quotaflow/quotaflow-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "usage-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "usage-worker"

	logg = logger.New(logger.Options{
		ServiceName: "usage-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.UsageSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "usage subscription", errors.New("subscription not configured"))
	}

	timezone, err := time.LoadLocation(cfg.Metering.Timezone)
	requireResource(ctx, logg, "metering timezone", err)

	registry, err := metering.NewRegistry(cfg.Metering.LimitOverrides)
	requireResource(ctx, logg, "plan registry", err)

	var auditSink metering.AuditSink
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery client", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "failed to close bigquery client", err)
			}
		}()
		writer, err := audit.New(bqClient, audit.Config{DecisionsTable: cfg.BigQuery.DecisionsTable})
		requireResource(ctx, logg, "decision audit writer", err)
		auditSink = writer
	}

	meteringService, err := metering.NewService(metering.ServiceParams{
		Repo:       metering.NewRepository(dbClient.DB()),
		Registry:   registry,
		Logg:       logg,
		Cache:      redisClient,
		Journal:    redisClient,
		Audit:      auditSink,
		Metrics:    metrics.NewDecisionMetrics(prometheus.DefaultRegisterer),
		Timezone:   timezone,
		DedupTTL:   cfg.Metering.DedupTTL,
		JournalTTL: cfg.Metering.JournalTTL,
	})
	requireResource(ctx, logg, "metering service", err)

	consumer, err := usageconsumer.NewConsumer(meteringService, logg)
	requireResource(ctx, logg, "usage consumer", err)

	runner, err := usageconsumer.NewRunner(subscription, consumer, logg)
	requireResource(ctx, logg, "usage runner", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "usage worker ready")

	if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "usage worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
