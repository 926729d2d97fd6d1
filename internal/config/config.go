// Package config loads process configuration from the environment, with flag
// overrides applied by each binary.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/danielpatrickdp/persona-state/internal/gate"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region config

// Config holds everything the persona binaries need to start.
type Config struct {
	// DBPath is the SQLite file holding snapshots, records and the side tables.
	DBPath string `env:"PERSONA_DB_PATH" envDefault:"persona_state.db"`
	// DatabaseURL moves snapshots and records to Postgres when set. Side tables stay in DBPath.
	DatabaseURL string `env:"PERSONA_DATABASE_URL"`
	Addr        string `env:"PERSONA_ADDR" envDefault:"localhost:50061"`

	LogLevel  string `env:"PERSONA_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PERSONA_LOG_FORMAT" envDefault:"text"`

	OTelEndpoint string `env:"PERSONA_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"PERSONA_OTEL_ENABLED" envDefault:"true"`

	Language string `env:"PERSONA_LANG" envDefault:"en"`

	EnumThreshold    float64 `env:"PERSONA_ENUM_THRESHOLD" envDefault:"2.5"`
	FatigueRetention int     `env:"PERSONA_FATIGUE_RETENTION" envDefault:"30"`
	// DriftTolerance is the float slack the gate allows over a field's drift cap.
	DriftTolerance float64 `env:"PERSONA_DRIFT_TOLERANCE" envDefault:"1e-9"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig reads the environment, then lets args override it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres URL for persona snapshots (optional)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "gRPC listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "language for explanations")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.EnumThreshold <= 1 {
		return fmt.Errorf("enum threshold must exceed 1, got %g", c.EnumThreshold)
	}
	if c.DriftTolerance < 0 {
		return fmt.Errorf("drift tolerance must not be negative, got %g", c.DriftTolerance)
	}
	if c.FatigueRetention < 1 {
		return fmt.Errorf("fatigue retention must be positive, got %d", c.FatigueRetention)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// UpdateConfig returns the engine tunables.
func (c Config) UpdateConfig() update.UpdateConfig {
	cfg := update.DefaultUpdateConfig()
	cfg.EnumThreshold = c.EnumThreshold
	cfg.FatigueRetention = c.FatigueRetention
	return cfg
}

// GateConfig returns the pre-persistence gate tolerances.
func (c Config) GateConfig() gate.GateConfig {
	cfg := gate.DefaultGateConfig()
	cfg.DriftTolerance = c.DriftTolerance
	return cfg
}

// TracingEndpoint returns the OTLP endpoint, or "" when tracing is off.
func (c Config) TracingEndpoint() string {
	if !c.OTelEnabled {
		return ""
	}
	return c.OTelEndpoint
}

// #endregion config
