// Command collector runs the flowmesh telemetry collector.
//
// # Usage
//
//	collector --config /etc/monitoring/collector.toml
//
// # Configuration
//
// Configuration is loaded from a TOML file (--config, default
// /etc/monitoring/collector.toml), then overridden by FLOWMESH_*
// environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/flowmesh/telemetry/collector/internal/auth"
	"github.com/flowmesh/telemetry/collector/internal/config"
	"github.com/flowmesh/telemetry/collector/internal/intake"
	"github.com/flowmesh/telemetry/collector/internal/observability"
	"github.com/flowmesh/telemetry/collector/internal/sink"
	"github.com/flowmesh/telemetry/db/migrate"
)

const defaultConfigPath = "/etc/monitoring/collector.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "config file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(*configPath, logger); err != nil {
		logger.Error("collector exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("collector shutdown complete")
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Sink.Backend == "postgres" {
		if err := runMigrations(cfg.Sink.PostgresURL, logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	s, closeSink, err := sink.New(context.Background(), cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("constructing sink: %w", err)
	}
	defer closeSink.Close()

	var redisClient *redis.Client
	if cfg.Sink.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Sink.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing sink.redis_url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	guard := auth.NewGuard(auth.Mode(cfg.Auth.Mode), cfg.Auth.TokenSecret)

	var enrollment *auth.EnrollmentService
	if cfg.Auth.EnrollmentSecret != "" {
		enrollment, err = auth.NewEnrollmentService(cfg.Auth.EnrollmentSecret, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("constructing enrollment service: %w", err)
		}
		logger.Info("enrollment endpoint enabled")
	} else {
		logger.Info("enrollment endpoint disabled - auth.enrollment_secret not set")
	}

	metrics := observability.NewMetrics()
	server := intake.NewServer(guard, enrollment, s, redisClient, logger).WithMetrics(metrics)

	httpServer := &http.Server{
		Addr:         cfg.Server.WebsocketAddr,
		Handler:      server.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    cfg.Observability.MetricsAddr,
		Handler: metrics.Handler(),
	}

	go func() {
		logger.Info("starting ingest listener", "addr", cfg.Server.WebsocketAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ingest listener error", "error", err)
		}
	}()

	go func() {
		logger.Info("starting metrics listener", "addr", cfg.Observability.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingest listener shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics listener shutdown error", "error", err)
	}
	return nil
}

// runMigrations connects to postgresURL just long enough to bring the
// schema up to date; the sink opens its own long-lived pool afterward.
func runMigrations(postgresURL string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}

	return migrate.Run(ctx, pool, logger)
}
