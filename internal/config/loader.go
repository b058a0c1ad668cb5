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
//  2. file (YAML) if SPRINTGATES_CONFIG is set
//  3. env (prefix SPRINTGATES_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SPRINTGATES_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: SPRINTGATES_ADDR, SPRINTGATES_SYNC_INTERVAL, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("SPRINTGATES_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "sprintgates_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GateCount < 2:
		return fmt.Errorf("%w: gate_count must be at least 2", ErrInvalidConfig)
	case c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1:
		return fmt.Errorf("%w: smoothing_alpha must be in (0, 1]", ErrInvalidConfig)
	case c.MaxCorrectionMS <= 0:
		return fmt.Errorf("%w: max_correction_ms must be positive", ErrInvalidConfig)
	case c.StartupSamples < 1 || c.SyncSamples < 1:
		return fmt.Errorf("%w: sample counts must be at least 1", ErrInvalidConfig)
	case c.SyncInterval <= 0:
		return fmt.Errorf("%w: sync_interval must be positive", ErrInvalidConfig)
	}
	return nil
}
