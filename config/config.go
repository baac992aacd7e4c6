package config

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Swind/go-bgworker/core"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BGWORKER_POOL_MAX_WORKERS.
const EnvPrefix = "BGWORKER"

// Config represents the complete bgworker configuration
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool" yaml:"pool"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// PoolConfig controls the elastic worker pool
type PoolConfig struct {
	// ID names the pool in logs and metrics
	ID string `mapstructure:"id" yaml:"id"`
	// MinWorkers is the ceiling the pool relaxes to between submissions
	MinWorkers int `mapstructure:"min_workers" yaml:"min_workers"`
	// MaxWorkers is the ceiling while a submission is admitted
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
	// KeepAliveMs is how long an idle worker above the ceiling lingers (in milliseconds)
	KeepAliveMs int `mapstructure:"keep_alive_ms" yaml:"keep_alive_ms"`
}

// DispatchConfig controls consumer delivery
type DispatchConfig struct {
	// Name identifies the dispatcher in logs and metrics
	Name string `mapstructure:"name" yaml:"name"`
	// CoalesceDelayMs is the window in which chunk and progress flushes are batched (in milliseconds)
	CoalesceDelayMs int `mapstructure:"coalesce_delay_ms" yaml:"coalesce_delay_ms"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address for /metrics
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Namespace prefixes every metric name
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	// PollIntervalMs is how often pool and runner snapshots are exported (in milliseconds)
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			ID:          "bgworker",
			MinWorkers:  0,
			MaxWorkers:  core.DefaultMaxWorkers,
			KeepAliveMs: int(core.DefaultKeepAlive / time.Millisecond),
		},
		Dispatch: DispatchConfig{
			Name:            "bgworker",
			CoalesceDelayMs: int(core.DefaultCoalesceDelay / time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Addr:           ":9090",
			Namespace:      "bgworker",
			PollIntervalMs: 1000,
		},
	}
}

// KeepAlive returns the keep-alive as a time.Duration
func (c *PoolConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveMs) * time.Millisecond
}

// CoalesceDelay returns the coalescing window as a time.Duration
func (c *DispatchConfig) CoalesceDelay() time.Duration {
	return time.Duration(c.CoalesceDelayMs) * time.Millisecond
}

// PollInterval returns the snapshot interval as a time.Duration
func (c *MetricsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Pool defaults
	v.SetDefault("pool.id", defaults.Pool.ID)
	v.SetDefault("pool.min_workers", defaults.Pool.MinWorkers)
	v.SetDefault("pool.max_workers", defaults.Pool.MaxWorkers)
	v.SetDefault("pool.keep_alive_ms", defaults.Pool.KeepAliveMs)

	// Dispatch defaults
	v.SetDefault("dispatch.name", defaults.Dispatch.Name)
	v.SetDefault("dispatch.coalesce_delay_ms", defaults.Dispatch.CoalesceDelayMs)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval_ms", defaults.Metrics.PollIntervalMs)
}

// Load reads defaults, the optional config file at path and BGWORKER_*
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return LoadFrom(v)
}

// LoadFrom unmarshals an already prepared viper instance and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// NewPoolConfig maps the pool section onto core.PoolConfig.
func (c *Config) NewPoolConfig(logger core.Logger, metrics core.Metrics) *core.PoolConfig {
	return &core.PoolConfig{
		ID:         c.Pool.ID,
		MinWorkers: c.Pool.MinWorkers,
		MaxWorkers: c.Pool.MaxWorkers,
		KeepAlive:  c.Pool.KeepAlive(),
		Logger:     logger,
		Metrics:    metrics,
	}
}

// DispatcherOptions maps the dispatch section onto dispatcher options.
// The pool is left to the caller.
func (c *Config) DispatcherOptions(logger core.Logger, metrics core.Metrics) []core.DispatcherOption {
	opts := []core.DispatcherOption{
		core.WithName(c.Dispatch.Name),
		core.WithCoalesceDelay(c.Dispatch.CoalesceDelay()),
	}
	if logger != nil {
		opts = append(opts, core.WithLogger(logger))
	}
	if metrics != nil {
		opts = append(opts, core.WithMetrics(metrics))
	}
	return opts
}

// NewLogger builds a slog-backed core.Logger writing to w.
func (c *LoggingConfig) NewLogger(w io.Writer) core.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return core.NewSlogLogger(slog.New(handler))
}

// SlogLevel converts Level, defaulting to info.
func (c *LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var verrs ValidationErrors
	return errors.As(err, &verrs)
}
