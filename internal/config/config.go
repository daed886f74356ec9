// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database location; ":memory:" for ephemeral runs.
	DBPath string `koanf:"db_path"`

	// RuleSetName is the rule set consulted for weight vectors.
	RuleSetName string `koanf:"rule_set_name"`

	// RecomputeTimeoutMS bounds one recompute pipeline run; on timeout the
	// engine degrades to the neutral score instead of hanging.
	RecomputeTimeoutMS int `koanf:"recompute_timeout_ms"`

	// SweepQueueSize bounds the post-activation recompute queue.
	SweepQueueSize int `koanf:"sweep_queue_size"`

	// SweepWorkerCount sets the number of sweep recompute workers.
	SweepWorkerCount int `koanf:"sweep_worker_count"`

	// HighImpactDiffThreshold is the changed-key count at or above which a
	// rule-set diff is flagged as high impact.
	HighImpactDiffThreshold int `koanf:"high_impact_diff_threshold"`

	// MaxHistoryLimit caps GET /history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":8090",
		DBPath:                  "reputor.db",
		RuleSetName:             "default",
		RecomputeTimeoutMS:      2_000,
		SweepQueueSize:          100_000,
		SweepWorkerCount:        runtime.NumCPU() * 2,
		HighImpactDiffThreshold: 10,
		MaxHistoryLimit:         500,
	}
}
