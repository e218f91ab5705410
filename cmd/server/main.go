package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"notifications.app/engine/common/id"
	"notifications.app/engine/common/logger"
	"notifications.app/engine/common/otel"
	"notifications.app/engine/core/config"
	"notifications.app/engine/core/db"
	"notifications.app/engine/internal/aggregation"
	"notifications.app/engine/internal/http/middleware"
	httprouter "notifications.app/engine/internal/http/router"
	"notifications.app/engine/internal/service"
	"notifications.app/engine/internal/store"
)

func main() {
	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The production logger exports through the OTel provider, so OTel comes first.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	log := logger.Setup(cfg)

	slog.InfoContext(ctx, "notifications server starting",
		"env", cfg.Env,
		"service", cfg.OTel.ServiceName,
		"otel", cfg.OTel.Enabled())

	if err := id.Init(id.NodeServer); err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "database ready")

	stores := store.NewStores(database.Conn())
	services := service.NewServices(stores,
		service.NewTxRunner(database),
		aggregation.NewStore(stores.Aggregations(), log),
		cfg.Webhook.MaxServerErrors,
		log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, services),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "server shutdown complete")
	return nil
}

func newRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// otelgin goes first so recovery and the access log see the request span.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery(), middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
	})
	return router
}
