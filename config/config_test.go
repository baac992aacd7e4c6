package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-bgworker/core"
	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default pool config
	if cfg.Pool.MinWorkers != 0 || cfg.Pool.MaxWorkers != core.DefaultMaxWorkers {
		t.Errorf("Pool workers = %d..%d, want 0..%d", cfg.Pool.MinWorkers, cfg.Pool.MaxWorkers, core.DefaultMaxWorkers)
	}
	if cfg.Pool.KeepAlive() != core.DefaultKeepAlive {
		t.Errorf("Pool.KeepAlive() = %v, want %v", cfg.Pool.KeepAlive(), core.DefaultKeepAlive)
	}

	// Verify default dispatch config
	if cfg.Dispatch.CoalesceDelay() != core.DefaultCoalesceDelay {
		t.Errorf("Dispatch.CoalesceDelay() = %v, want %v", cfg.Dispatch.CoalesceDelay(), core.DefaultCoalesceDelay)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() does not validate: %v", ValidationErrors(errs))
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.ID != "bgworker" || cfg.Logging.Level != "info" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bgworker.yaml")
	content := `
pool:
  id: io
  max_workers: 4
dispatch:
  coalesce_delay_ms: 50
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("BGWORKER_POOL_MIN_WORKERS", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pool.ID != "io" || cfg.Pool.MaxWorkers != 4 {
		t.Errorf("Pool = %+v, want id io max 4", cfg.Pool)
	}
	if cfg.Pool.MinWorkers != 2 {
		t.Errorf("Pool.MinWorkers = %d, want 2 from env", cfg.Pool.MinWorkers)
	}
	if cfg.Dispatch.CoalesceDelay() != 50*time.Millisecond {
		t.Errorf("CoalesceDelay() = %v, want 50ms", cfg.Dispatch.CoalesceDelay())
	}
	if cfg.Pool.KeepAliveMs != 1000 {
		t.Errorf("Pool.KeepAliveMs = %d, want default 1000", cfg.Pool.KeepAliveMs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("pool.min_workers", 8)
	v.Set("pool.max_workers", 2)
	v.Set("logging.level", "verbose")

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("LoadFrom() should reject the config")
	}
	if !IsValidationError(err) {
		t.Fatalf("error %T is not ValidationErrors", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "pool.max_workers") || !strings.Contains(msg, "logging.level") {
		t.Errorf("error = %q, want both fields reported", msg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative min", func(c *Config) { c.Pool.MinWorkers = -1 }, "pool.min_workers"},
		{"zero max", func(c *Config) { c.Pool.MaxWorkers = 0 }, "pool.max_workers"},
		{"zero keep alive", func(c *Config) { c.Pool.KeepAliveMs = 0 }, "pool.keep_alive_ms"},
		{"zero delay", func(c *Config) { c.Dispatch.CoalesceDelayMs = 0 }, "dispatch.coalesce_delay_ms"},
		{"huge delay", func(c *Config) { c.Dispatch.CoalesceDelayMs = 5000 }, "dispatch.coalesce_delay_ms"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("Validate() returned no errors")
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestConfig_NewPoolConfigAndDispatcherOptions(t *testing.T) {
	cfg := Default()
	cfg.Pool.ID = "mapped"
	cfg.Pool.MaxWorkers = 3
	cfg.Dispatch.CoalesceDelayMs = 20

	pc := cfg.NewPoolConfig(nil, nil)
	if pc.ID != "mapped" || pc.MaxWorkers != 3 || pc.KeepAlive != time.Second {
		t.Errorf("NewPoolConfig() = %+v", pc)
	}

	consumer := core.NewSingleThreadTaskRunner()
	defer consumer.Stop()
	d := core.NewDispatcher(consumer, cfg.DispatcherOptions(core.NewNoOpLogger(), nil)...)
	if d.Name() != "bgworker" || d.CoalesceDelay() != 20*time.Millisecond {
		t.Errorf("dispatcher name %q delay %v", d.Name(), d.CoalesceDelay())
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	lc := LoggingConfig{Level: "warn", Format: "json"}
	logger := lc.NewLogger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", core.F("pool", "io"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"pool":"io"`) {
		t.Errorf("unexpected output: %q", out)
	}

	if (&LoggingConfig{Level: "nonsense"}).SlogLevel() != slog.LevelInfo {
		t.Error("unknown level should fall back to info")
	}
}
