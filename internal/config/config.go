// Package config loads the quantlab YAML configuration, overlays it on the
// built-in defaults and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/performance"
	"quantlab/internal/risk"
	"quantlab/internal/stats"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantlab.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Logging    Logging          `yaml:"logging"`
	Analytics  Analytics        `yaml:"analytics"`
	Indicators indicator.Params `yaml:"indicators"`
	Backtest   Backtest         `yaml:"backtest"`
}

// Storage selects and locates the bar store.
type Storage struct {
	Kind       string `yaml:"kind"` // parquet | sqlite
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	GRPCPort        int    `yaml:"grpc_port"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"` // 0 disables
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Analytics parameterizes return, statistics and risk computations.
type Analytics struct {
	ReturnKind string `yaml:"return_kind"`
	Interval   string `yaml:"interval"`
	// PeriodsPerYear overrides the multiplier derived from Interval.
	PeriodsPerYear float64   `yaml:"periods_per_year"`
	Percentiles    []float64 `yaml:"percentiles"`
	Significance   float64   `yaml:"significance"`
	Confidence     float64   `yaml:"confidence"`
	VaRMethod      string    `yaml:"var_method"`
	RollingWindow  int       `yaml:"rolling_window"`
}

// Backtest holds the default strategy and simulation parameters.
type Backtest struct {
	Strategy        string  `yaml:"strategy"`
	Fast            int     `yaml:"fast"`
	Slow            int     `yaml:"slow"`
	Signal          int     `yaml:"signal"`
	AllowShort      bool    `yaml:"allow_short"`
	InitialCapital  float64 `yaml:"initial_capital"`
	TransactionCost float64 `yaml:"transaction_cost"`
	RiskFreeRate    float64 `yaml:"risk_free_rate"`
	OpenPosition    string  `yaml:"open_position"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{Kind: store.KindParquet, DataDir: "data", SQLitePath: "data/quantlab.db"},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Logging: Logging{Level: "info", Format: "json"},
		Analytics: Analytics{
			ReturnKind:    string(domain.Arithmetic),
			Interval:      "1d",
			Percentiles:   stats.DefaultOptions().Percentiles,
			Significance:  stats.DefaultSignificance,
			Confidence:    0.95,
			VaRMethod:     string(risk.Historical),
			RollingWindow: 20,
		},
		Indicators: indicator.DefaultParams(),
		Backtest: Backtest{
			Strategy:        "sma-cross",
			Fast:            20,
			Slow:            50,
			InitialCapital:  1000,
			TransactionCost: 0.001,
			OpenPosition:    string(backtest.ForceClose),
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, applies environment variable overrides and validates the
// result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("QUANTLAB_STORE"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{"QUANTLAB_TRANSACTION_COST", &cfg.Backtest.TransactionCost},
		{"QUANTLAB_RISK_FREE_RATE", &cfg.Backtest.RiskFreeRate},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.env, err)
		}
		*f.dst = x
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation and derived values
// ---------------------------------------------------------------------------

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	const op = "config.Validate"
	switch c.Storage.Kind {
	case store.KindParquet, store.KindSQLite:
	default:
		return domain.InvalidParameter(op, "storage.kind", "unknown store %q", c.Storage.Kind)
	}
	switch domain.ReturnKind(c.Analytics.ReturnKind) {
	case domain.Arithmetic, domain.Logarithmic:
	default:
		return domain.InvalidParameter(op, "analytics.return_kind", "unknown kind %q", c.Analytics.ReturnKind)
	}
	if _, err := c.PeriodsPerYear(); err != nil {
		return err
	}
	for _, p := range c.Analytics.Percentiles {
		if p < 0 || p > 1 {
			return domain.InvalidParameter(op, "analytics.percentiles", "fraction %v outside [0,1]", p)
		}
	}
	if !(c.Analytics.Significance > 0 && c.Analytics.Significance < 1) {
		return domain.InvalidParameter(op, "analytics.significance", "must be in (0,1), got %v", c.Analytics.Significance)
	}
	if !(c.Analytics.Confidence > 0 && c.Analytics.Confidence < 1) {
		return domain.InvalidParameter(op, "analytics.confidence", "must be in (0,1), got %v", c.Analytics.Confidence)
	}
	if _, err := risk.ParseMethod(c.Analytics.VaRMethod); err != nil {
		return err
	}
	if c.Analytics.RollingWindow < 2 {
		return domain.InvalidParameter(op, "analytics.rolling_window", "must be >= 2, got %d", c.Analytics.RollingWindow)
	}
	if a := c.Indicators.EMAAlpha; !(a >= 0 && a <= 1) {
		return domain.InvalidParameter(op, "indicators.ema_alpha", "must be in [0,1], got %v", a)
	}
	if c.Indicators.BollingerK < 0 {
		return domain.InvalidParameter(op, "indicators.bollinger_k", "must be >= 0, got %v", c.Indicators.BollingerK)
	}
	return c.BacktestOptions().Validate()
}

// PeriodsPerYear returns the explicit multiplier or the one implied by the
// configured interval.
func (c *Config) PeriodsPerYear() (float64, error) {
	if c.Analytics.PeriodsPerYear < 0 {
		return 0, domain.InvalidParameter("config", "analytics.periods_per_year",
			"must be > 0, got %v", c.Analytics.PeriodsPerYear)
	}
	if c.Analytics.PeriodsPerYear > 0 {
		return c.Analytics.PeriodsPerYear, nil
	}
	return util.PeriodsPerYear(c.Analytics.Interval)
}

// StatsOptions returns the descriptive statistics options.
func (c *Config) StatsOptions() stats.Options {
	ppy, _ := c.PeriodsPerYear()
	return stats.Options{Percentiles: c.Analytics.Percentiles, PeriodsPerYear: ppy}
}

// BacktestOptions returns the simulator options.
func (c *Config) BacktestOptions() backtest.Options {
	return backtest.Options{
		InitialCapital: c.Backtest.InitialCapital,
		Cost:           c.Backtest.TransactionCost,
		OpenPosition:   backtest.OpenPositionPolicy(c.Backtest.OpenPosition),
	}
}

// PerformanceOptions returns the evaluator options.
func (c *Config) PerformanceOptions() performance.Options {
	ppy, _ := c.PeriodsPerYear()
	return performance.Options{PeriodsPerYear: ppy, RiskFreeRate: c.Backtest.RiskFreeRate}
}

// StrategyParams returns the configured strategy parameters.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		Fast:       c.Backtest.Fast,
		Slow:       c.Backtest.Slow,
		Signal:     c.Backtest.Signal,
		AllowShort: c.Backtest.AllowShort,
	}
}
