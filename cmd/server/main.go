package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/alerts"
	"github.com/covergate/eligibility-engine/internal/api"
	"github.com/covergate/eligibility-engine/internal/claims"
	"github.com/covergate/eligibility-engine/internal/config"
	"github.com/covergate/eligibility-engine/internal/engine"
	"github.com/covergate/eligibility-engine/internal/monitor"
	"github.com/covergate/eligibility-engine/internal/notify"
	"github.com/covergate/eligibility-engine/internal/rules"
	"github.com/covergate/eligibility-engine/internal/scheduler"
	"github.com/covergate/eligibility-engine/internal/storage"
)

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.App.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to NATS
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Storage backend
	var (
		conditionStore storage.ConditionStore
		alertStore     storage.AlertStore
		reminderStore  storage.ReminderStore
		resultStore    storage.ResultStore
	)
	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := storage.NewSQLiteStore(logger, cfg.Storage.Path)
		if err != nil {
			logger.Fatal("Failed to open storage", zap.Error(err))
		}
		defer store.Close()
		conditionStore, alertStore, reminderStore, resultStore = store, store, store, store
	default:
		store := storage.NewMemoryStore()
		conditionStore, alertStore, reminderStore, resultStore = store, store, store, store
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed default eligibility conditions on first run
	if err := engine.SeedDefaults(ctx, conditionStore, logger); err != nil {
		logger.Fatal("Failed to seed conditions", zap.Error(err))
	}

	// Reminder hand-off to the delivery bus
	dispatcher, err := notify.NewNATSDispatcher(js, logger)
	if err != nil {
		logger.Fatal("Failed to create reminder dispatcher", zap.Error(err))
	}

	// Category overrides from config
	overrides := make(map[string]claims.CategoryConfig, len(cfg.Categories))
	for name, c := range cfg.Categories {
		overrides[name] = claims.CategoryConfig{
			LookbackMonths:   c.LookbackMonths,
			MaxClaimsAllowed: c.MaxClaimsAllowed,
		}
	}

	// Metrics
	var metrics *monitor.MetricsCollector
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetricsCollector(js, cfg.Metrics.Interval, logger)
		if err := metrics.Start(ctx); err != nil {
			logger.Fatal("Failed to start metrics collector", zap.Error(err))
		}
		defer metrics.Stop()
	}

	managerOpts := []alerts.Option{alerts.WithDispatcher(dispatcher)}
	if metrics != nil {
		managerOpts = append(managerOpts, alerts.WithMetrics(metrics))
	}
	manager := alerts.NewManager(logger, alertStore, reminderStore, managerOpts...)
	eng := engine.NewEngine(logger, conditionStore, resultStore,
		claims.NewAnalyzer(logger, overrides),
		rules.NewEvaluator(logger),
		manager)

	// Periodic scheduled-action sweep
	sweeper, err := scheduler.NewSweeper(logger, manager, cfg.Sweep.Expression)
	if err != nil {
		logger.Fatal("Failed to create sweeper", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP API; the handler doubles as the subject provider for rechecks
	handler := api.NewHandler(logger, eng, conditionStore, resultStore, manager, sweeper, metrics)
	manager.SetRecheck(eng.RecheckFunc(handler))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	logger.Info("Server shutting down gracefully")
}
