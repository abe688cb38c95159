// Package config loads the YAML configuration for the tradesys tools and
// applies environment variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tradesys.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`      // parquet panel root
	SQLitePath   string `yaml:"sqlite_path"`   // result database
	CalendarPath string `yaml:"calendar_path"` // trading-date list, one date per line
}

// Server holds network listener configuration for the result API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines the simulation window, sizing, risk, and friction
// parameters of a backtest run.
type BacktestConfig struct {
	Start string `yaml:"start"` // YYYY-MM-DD, inclusive
	End   string `yaml:"end"`   // YYYY-MM-DD, inclusive

	Capital            float64 `yaml:"capital"`
	MaxPositions       int     `yaml:"max_positions"`
	MaxNewPositionsDay int     `yaml:"max_new_positions_per_day"`
	MaxHoldDays        int     `yaml:"max_hold_days"`

	StopLossPct   float64 `yaml:"stop_loss_pct"`   // relative to entry, e.g. -0.05
	TakeProfitPct float64 `yaml:"take_profit_pct"` // relative to entry, e.g. 0.10

	LotSize       int64   `yaml:"lot_size"`
	MinOrderValue float64 `yaml:"min_order_value"`
	EntryBandPct  float64 `yaml:"entry_band_pct"` // buy interval half-width around the open

	CommissionRate float64 `yaml:"commission_rate"`
	StampTaxRate   float64 `yaml:"stamp_tax_rate"`
	MinCommission  float64 `yaml:"min_commission"`
	SlippageBps    float64 `yaml:"slippage_bps"`

	FillModel string `yaml:"fill_model"` // "range" (default) or "vwap"
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the standard A-share parameters.
// Values mirror common retail brokerage terms: commission 0.02% with a ¥5
// floor, stamp tax 0.05% on sells only, lot size 100 shares.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:      "data",
			SQLitePath:   "tradesys.db",
			CalendarPath: "data/cn/calendar.txt",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8082,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: BacktestConfig{
			Capital:            100000,
			MaxPositions:       6,
			MaxNewPositionsDay: 3,
			MaxHoldDays:        10,
			StopLossPct:        -0.05,
			TakeProfitPct:      0.10,
			LotSize:            100,
			MinOrderValue:      2000,
			EntryBandPct:       0.003,
			CommissionRate:     0.0002,
			StampTaxRate:       0.0005,
			MinCommission:      5.0,
			SlippageBps:        2.0,
			FillModel:          "range",
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CALENDAR_PATH"); v != "" {
		cfg.Storage.CalendarPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backtest.Capital = f
		}
	}
	if v := os.Getenv("BACKTEST_START"); v != "" {
		cfg.Backtest.Start = v
	}
	if v := os.Getenv("BACKTEST_END"); v != "" {
		cfg.Backtest.End = v
	}
}
