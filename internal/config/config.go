// Package config loads solver configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the CLI-facing solver configuration.
type Config struct {
	// Workers is the scheduling parallelism; 1 selects the deterministic
	// sequential backend.
	Workers int `mapstructure:"workers"`

	// Debug enables per-update diagnostics and turns monotonicity
	// violations into panics.
	Debug bool `mapstructure:"debug"`

	// Fallbacks controls whether uncomputed demanded properties receive
	// their kind's fallback value at completion.
	Fallbacks bool `mapstructure:"fallbacks"`

	// TracePath is the SQLite journal path; empty disables tracing.
	TracePath string `mapstructure:"tracePath"`

	// Logging configures the structured logger.
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Workers:   1,
		Fallbacks: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration with the usual precedence: explicit file path,
// then ./fixpoint.yaml, then FIXPOINT_* environment variables, then
// defaults. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("workers", 1)
	v.SetDefault("debug", false)
	v.SetDefault("fallbacks", true)
	v.SetDefault("tracePath", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fixpoint")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FIXPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// The implicit search may come up empty; an explicit path must
		// exist and parse.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging format %q", c.Logging.Format)
	}
	return nil
}
