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
//  2. file (YAML) if CAPWATCH_CONFIG is set
//  3. env (prefix CAPWATCH_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CAPWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: CAPWATCH_CLAN_NAME, CAPWATCH_DB_PATH, ...
	// Map env keys like CAPWATCH_CLAN_NAME -> clan_name (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("CAPWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "capwatch_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ClanName) == "":
		return fmt.Errorf("%w: clan_name must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.PollIntervalMinutes < 1:
		return fmt.Errorf("%w: poll_interval_minutes must be at least 1", ErrInvalidConfig)
	case c.ActivityLimit < 1:
		return fmt.Errorf("%w: activity_limit must be at least 1", ErrInvalidConfig)
	case c.InitialBackoffSeconds < 1 || c.MaxBackoffSeconds < c.InitialBackoffSeconds:
		return fmt.Errorf("%w: backoff bounds must satisfy 1 <= initial <= max", ErrInvalidConfig)
	}
	return nil
}
