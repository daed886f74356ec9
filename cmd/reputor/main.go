// Command reputor runs the reputation scoring engine and its HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/reputor/reputor/internal/adapters/http/api"
	"github.com/reputor/reputor/internal/adapters/repository/sqlitestore"
	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/config"
	"github.com/reputor/reputor/pkg/logger"
	"github.com/reputor/reputor/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := sqlitestore.New(cfg.DBPath, sqlitestore.WithLogger(logger.Named("sqlite")))
	if err != nil {
		os.Stderr.WriteString("failed to open store: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	engine := service.New(store,
		service.WithLogger(log),
		service.WithRuleSetName(cfg.RuleSetName),
		service.WithRecomputeTimeout(time.Duration(cfg.RecomputeTimeoutMS)*time.Millisecond),
		service.WithHighImpactThreshold(cfg.HighImpactDiffThreshold),
		service.WithMaxHistoryLimit(cfg.MaxHistoryLimit),
		service.WithSweepQueueSize(cfg.SweepQueueSize),
		service.WithSweepWorkerCount(cfg.SweepWorkerCount),
	)
	if err := engine.EnsureRuleSet(ctx); err != nil {
		os.Stderr.WriteString("failed to seed rule set: " + err.Error() + "\n")
		return
	}
	engine.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := engine.Stop(stopCtx); err != nil {
			log.Error(ctx, "engine stop failed", logger.Error(err))
		}
	}()

	// Start system metrics updater.
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(engine, engine)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater updates process-level metrics on a fixed interval.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
