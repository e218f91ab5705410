package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"notifications.app/engine/common/id"
	"notifications.app/engine/common/logger"
	"notifications.app/engine/common/otel"
	"notifications.app/engine/core/config"
	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/dedup"
	"notifications.app/engine/internal/pipeline"
	"notifications.app/engine/internal/queue"
	"notifications.app/engine/internal/scheduler"
	"notifications.app/engine/internal/store"
)

const (
	digestJobName    = "daily-digest"
	retentionJobName = "dedup-retention"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeAggregator)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Setup(cfg)

	slog.InfoContext(ctx, "notifications aggregator starting",
		"env", cfg.Env,
		"digest_schedule", cfg.Aggregation.Schedule,
		"retention_schedule", cfg.Retention.Schedule,
		"async", cfg.Features.AsyncAggregator)

	if err := id.Init(id.NodeAggregator); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	stores := store.NewStores(database.Conn())

	// In async mode each digest key becomes an aggregation event on the
	// inbound stream and the engine sends it.
	var digestProducer queue.Producer
	if cfg.Features.AsyncAggregator {
		digestProducer = queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, log)
	}

	deliveries, err := pipeline.Build(ctx, cfg, stores, redisClient, digestProducer, log)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build delivery pipeline", "error", err)
		os.Exit(1)
	}
	defer deliveries.Close()

	sweeper := dedup.NewSweeper(stores.Deduplication(), stores.InboundMessages(), cfg.Retention.MessageIDsTTL, log)

	sched, err := scheduler.New(cfg.Aggregation.Timezone, log)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create scheduler", "error", err)
		os.Exit(1)
	}

	if err := sched.Add(ctx, digestJobName, cfg.Aggregation.Schedule, deliveries.Digests.Run); err != nil {
		slog.ErrorContext(ctx, "failed to schedule digest job", "error", err)
		os.Exit(1)
	}
	if err := sched.Add(ctx, retentionJobName, cfg.Retention.Schedule, sweeper.Sweep); err != nil {
		slog.ErrorContext(ctx, "failed to schedule retention job", "error", err)
		os.Exit(1)
	}

	sched.Start()
	slog.InfoContext(ctx, "aggregator running",
		"next_digest", sched.Next(digestJobName),
		"next_retention", sched.Next(retentionJobName))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down aggregator...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "aggregator shutdown complete")
}
