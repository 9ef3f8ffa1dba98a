package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/causal/internal/api"
	"github.com/Harshitk-cp/causal/internal/buildconfig"
	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/config"
	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/Harshitk-cp/causal/internal/metrics"
	"github.com/Harshitk-cp/causal/internal/service"
	"github.com/Harshitk-cp/causal/internal/store"
	"github.com/Harshitk-cp/causal/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:    "causal",
		ServiceVersion: buildconfig.Version(),
		Endpoint:       config.OTLPEndpoint(),
		SamplingRate:   config.SamplingRate(),
	})
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	if tp != nil {
		logger.Info("tracing enabled", zap.String("endpoint", config.OTLPEndpoint()))
	}

	m := metrics.New()
	opts := []service.CausalServiceOption{service.WithMetrics(m)}

	var pool *pgxpool.Pool
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")

		if err := store.Migrate(ctx, pool, config.MigrationsPath(), logger); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		var gs domain.CausalGraphStore = store.NewGraphStore(pool)
		opts = append(opts, service.WithGraphStore(gs))
	} else {
		logger.Warn("DATABASE_URL not set, graphs are kept in memory only")
	}

	var effects *service.EffectCache
	if size := config.ResultCacheSize(); size > 0 {
		effects, err = service.NewEffectCache(size, config.ResultCacheTTL())
		if err != nil {
			logger.Fatal("failed to create effect cache", zap.Error(err))
		}
		opts = append(opts, service.WithEffectCache(effects))
	}

	builder := causal.NewBuilder(
		causal.WithMaxVariables(config.MaxGraphVariables()),
		causal.WithMaxEdges(config.MaxGraphEdges()),
	)
	svc := service.NewCausalService(builder, engineOptions(), logger, opts...)

	if _, err := svc.Restore(ctx); err != nil {
		logger.Fatal("failed to restore graphs", zap.Error(err))
	}

	app := api.NewApp(api.Deps{
		Service:        svc,
		Metrics:        m,
		DB:             pool,
		Logger:         logger,
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	})

	// Start background services
	expirer := service.NewExpirerService(effects, m, logger)
	expirer.SetInterval(config.CacheJanitorInterval())
	if effects != nil {
		expirer.Start()
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	if effects != nil {
		expirer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("server stopped")
}

func engineOptions() causal.Options {
	opts := causal.DefaultOptions()
	opts.MaxAdjustmentSetSize = config.MaxAdjustmentSetSize()
	opts.MaxSearchIterations = config.MaxSearchIterations()
	opts.MaxPaths = config.MaxPaths()
	opts.DefaultEquation = *domain.LinearEquation(config.DefaultEdgeCoefficient())
	if mode := config.CombineMode(); causal.ValidCombineMode(mode) {
		opts.Combine = causal.CombineMode(mode)
	}
	opts.Parallelism = config.ScenarioParallelism()
	return opts
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, buildErr := cfg.Build()
	if buildErr != nil {
		logger = zap.NewNop()
	}
	if err != nil {
		logger.Warn("invalid LOG_LEVEL, using info", zap.String("level", level))
	}
	return logger
}
