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

	"github.com/redis/go-redis/v9"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/alert"
	"github.com/promoguard/fraud-engine/internal/analyzer"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/handlers"
	"github.com/promoguard/fraud-engine/internal/ingest"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/report"
	"github.com/promoguard/fraud-engine/internal/sample"
	"github.com/promoguard/fraud-engine/internal/scheduler"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info("Starting fraud engine", "environment", cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("Fraud engine exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	// Ledger storage: Redis when available, in-memory otherwise.
	var store ledger.Store
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		store = ledger.NewRedisStore(client, cfg.Ledger.Retention)
		logger.Info("Using redis ledger store", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	} else {
		store = ledger.NewMemoryStore()
		logger.Info("Using in-memory ledger store")
	}
	led := ledger.New(store, cfg.Ledger, collector, logger)

	samples := sample.NewStore(cfg.Detection.LookbackWindow, cfg.Detection.MaxSamplesPerKey, logger)
	engine := scoring.NewEngine(cfg.Detection)
	resolver, err := action.NewResolver(action.Thresholds{
		Monitor: cfg.Detection.MonitorThreshold,
		Warning: cfg.Detection.WarningThreshold,
		Ban:     cfg.Detection.BanThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to build action resolver: %w", err)
	}

	var executor action.Executor
	if cfg.Enforcement.Enabled {
		executor = action.NewHTTPExecutor(cfg.Enforcement, logger)
	} else {
		executor = action.NewNopExecutor(logger)
	}

	var hub *notification.DashboardHub
	if cfg.Notifications.Dashboard.Enabled {
		hub = notification.NewDashboardHub(cfg.Notifications.Dashboard.BufferSize, logger)
	}
	notifier := notification.NewManager(cfg.Notifications, hub, logger)

	dispatcher := alert.NewDispatcher(cfg.Alerting,
		alert.NewMemoryWindowStore(cfg.Alerting.WindowShards),
		notifier, led, collector, logger)
	collector.RegisterQueueDepth(dispatcher.QueueDepth)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	an := analyzer.New(cfg.Analyzer, samples, engine, resolver, executor, dispatcher, led, collector, logger)
	an.Start(ctx)
	defer an.Stop()

	reports := report.NewGenerator(led, logger)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler, led, dispatcher, reports, notifier, logger)
		if err != nil {
			return fmt.Errorf("failed to build scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Kafka.Enabled {
		consumer := ingest.NewConsumer(cfg.Kafka, an, collector, logger)
		consumer.Start(ctx)
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.Error("Failed to stop sample consumer", "error", err)
			}
		}()
	}

	handler := handlers.New(an, reports, hub, collector, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	logger.Info("Fraud engine stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
