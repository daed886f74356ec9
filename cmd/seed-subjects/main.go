// Command seed-subjects populates a database with synthetic subjects and
// their computed scores. Useful for demos and local development.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository/sqlitestore"
	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/synth"
	"github.com/reputor/reputor/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumSubjects = 200
	defaultSandboxTTL  = 24 * time.Hour
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		dbPath      = flag.String("db", "reputor.db", "Path to the sqlite database")
		numSubjects = flag.Int("subjects", defaultNumSubjects, "Number of synthetic subjects to seed")
		sandboxID   = flag.String("sandbox", "", "Seed into this sandbox isolation id instead of production")
		sandboxTTL  = flag.Duration("sandbox-ttl", defaultSandboxTTL, "Sandbox expiry, measured from now")
		baselines   = flag.Bool("baselines", true, "Recompute scope baselines after seeding")
		timeout     = flag.Duration("timeout", defaultRunTimeout, "Overall run timeout")
		logLevel    = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(*logLevel); err != nil {
		os.Stderr.WriteString("invalid log level: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	log := logger.Get()

	store, err := sqlitestore.New(*dbPath)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	engine := service.New(store)
	if err := engine.EnsureRuleSet(ctx); err != nil {
		log.Error(ctx, "failed to ensure rule set", logger.Error(err))
		os.Exit(1)
	}

	cfg := &synth.Config{
		NumSubjects:        *numSubjects,
		RecomputeBaselines: *baselines,
		Timeout:            *timeout,
	}
	if *sandboxID != "" {
		cfg.Sandbox = &model.SandboxContext{
			IsolationID: *sandboxID,
			ExpiresAt:   time.Now().Add(*sandboxTTL),
		}
	}

	stats, err := synth.NewRunner(store, engine).Run(ctx, cfg)
	if err != nil {
		log.Error(ctx, "seeding failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "done",
		logger.Int("subjects", stats.SubjectsSeeded),
		logger.Int("snapshots", stats.SnapshotsComputed))
}
