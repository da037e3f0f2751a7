package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  kind: sqlite
  sqlite_path: "/tmp/quantlab/bars.db"
server:
  port: 8181
analytics:
  interval: 1wk
  percentiles: [0.01, 0.99]
indicators:
  ema_alpha: 0.3
backtest:
  strategy: ema-cross
  fast: 5
  slow: 15
  allow_short: true
  open_position: exclude
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.Kind != "sqlite" || cfg.Storage.SQLitePath != "/tmp/quantlab/bars.db" {
		t.Errorf("Storage = %+v, want sqlite at /tmp/quantlab/bars.db", cfg.Storage)
	}
	if cfg.Server.Port != 8181 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("Server ports = %d/%d, want 8181/9090", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if len(cfg.Analytics.Percentiles) != 2 || cfg.Analytics.Percentiles[1] != 0.99 {
		t.Errorf("Percentiles = %v, want [0.01 0.99]", cfg.Analytics.Percentiles)
	}
	if cfg.Analytics.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want default 0.95", cfg.Analytics.Confidence)
	}
	if ppy, _ := cfg.PeriodsPerYear(); ppy != 52 {
		t.Errorf("PeriodsPerYear() = %v, want 52 for 1wk", ppy)
	}
	if o := cfg.BacktestOptions(); o.OpenPosition != backtest.Exclude || o.Cost != 0.001 {
		t.Errorf("BacktestOptions() = %+v, want exclude with default cost", o)
	}
	if p := cfg.StrategyParams(); p.Fast != 5 || p.Slow != 15 || !p.AllowShort {
		t.Errorf("StrategyParams() = %+v, want fast 5 slow 15 short", p)
	}
	if cfg.Indicators.RSIPeriod != 14 || cfg.Indicators.EMAAlpha != 0.3 {
		t.Errorf("Indicators RSIPeriod/EMAAlpha = %d/%v, want default 14 and 0.3", cfg.Indicators.RSIPeriod, cfg.Indicators.EMAAlpha)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Backtest.Strategy != "sma-cross" {
		t.Errorf("Backtest.Strategy = %q, want sma-cross", cfg.Backtest.Strategy)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/override/data")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("QUANTLAB_TRANSACTION_COST", "0.0025")
	t.Setenv("QUANTLAB_RISK_FREE_RATE", "0.04")
	t.Setenv("QUANTLAB_STORE", "sqlite")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("DataDir = %q, want /override/data", cfg.Storage.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Backtest.TransactionCost != 0.0025 || cfg.Backtest.RiskFreeRate != 0.04 {
		t.Errorf("cost/rf = %v/%v, want 0.0025/0.04", cfg.Backtest.TransactionCost, cfg.Backtest.RiskFreeRate)
	}
	if cfg.Storage.Kind != "sqlite" {
		t.Errorf("Storage.Kind = %q, want sqlite", cfg.Storage.Kind)
	}

	t.Setenv("QUANTLAB_TRANSACTION_COST", "ten bps")
	if _, err := Load(""); err == nil {
		t.Error("Load() accepted a non-numeric QUANTLAB_TRANSACTION_COST")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence one", func(c *Config) { c.Analytics.Confidence = 1 }},
		{"significance zero", func(c *Config) { c.Analytics.Significance = 0 }},
		{"cost one", func(c *Config) { c.Backtest.TransactionCost = 1 }},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }},
		{"bad interval", func(c *Config) { c.Analytics.Interval = "2d" }},
		{"bad return kind", func(c *Config) { c.Analytics.ReturnKind = "simple" }},
		{"bad policy", func(c *Config) { c.Backtest.OpenPosition = "hold" }},
		{"bad var method", func(c *Config) { c.Analytics.VaRMethod = "montecarlo" }},
		{"bad store", func(c *Config) { c.Storage.Kind = "csv" }},
		{"percentile", func(c *Config) { c.Analytics.Percentiles = []float64{1.2} }},
		{"ema alpha", func(c *Config) { c.Indicators.EMAAlpha = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidParameter) {
				t.Errorf("Validate() = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing file returned nil error")
	}
}
