package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if REPUTOR_CONFIG is set
//  3. env (prefix REPUTOR_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("REPUTOR_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: REPUTOR_ADDR, REPUTOR_DB_PATH, ...
	// Map env keys like REPUTOR_DB_PATH -> db_path (flat keys); underscores
	// are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("REPUTOR_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "reputor_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.DBPath == "":
		return nil, fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case cfg.RuleSetName == "":
		return nil, fmt.Errorf("%w: rule_set_name must not be empty", ErrInvalidConfig)
	case cfg.SweepWorkerCount <= 0:
		return nil, fmt.Errorf("%w: sweep_worker_count must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
