// Package config loads and validates the session configuration. All
// tunables are read once at startup and are immutable afterwards; the
// acceleration factor in particular must never change mid-session.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML fields written as "90s", "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the whole session file.
type Config struct {
	Session  Session      `yaml:"session"`
	Market   Market       `yaml:"market"`
	Scenario Scenario     `yaml:"scenario"`
	Traders  []TraderSpec `yaml:"traders"`
	Stats    Stats        `yaml:"stats"`
	Feed     Server       `yaml:"feed"`
	Metrics  Server       `yaml:"metrics"`
	Logging  Logging      `yaml:"logging"`
}

// Session sets the time frame of the simulation.
type Session struct {
	// AccelerationFactor is the ratio of simulated to real time.
	AccelerationFactor float64 `yaml:"acceleration_factor"`

	// SimulatedDuration is the session length in simulated time.
	SimulatedDuration Duration `yaml:"simulated_duration"`

	// Grace is the real-time window agents get to flush final
	// broadcasts at shutdown.
	Grace Duration `yaml:"grace"`
}

// Market tunes the maker's pricing loop.
type Market struct {
	Symbol          string   `yaml:"symbol"`
	InitialPrice    float64  `yaml:"initial_price"`
	BaseSpread      float64  `yaml:"base_spread"`
	ImbalanceWeight float64  `yaml:"imbalance_weight"`
	SpreadVolWeight float64  `yaml:"spread_vol_weight"`
	WalkWeight      float64  `yaml:"walk_weight"`
	BaseVolatility  float64  `yaml:"base_volatility"`
	QuoteInterval   Duration `yaml:"quote_interval"`
	CommissionRate  float64  `yaml:"commission_rate"`
	DealerCash      float64  `yaml:"dealer_cash"`
	DealerShares    int64    `yaml:"dealer_shares"`
	Seed            int64    `yaml:"seed"`
}

// Scenario tunes the phase machine's news generation.
type Scenario struct {
	Tick          Duration `yaml:"tick"`
	NewsPerSecond float64  `yaml:"news_per_second"`
	NewsBurst     int      `yaml:"news_burst"`
	Seed          int64    `yaml:"seed"`
}

// TraderSpec declares one strategy agent.
type TraderSpec struct {
	Name        string   `yaml:"name"`
	Strategy    string   `yaml:"strategy"` // conservative, momentum or herd
	InitialCash float64  `yaml:"initial_cash"`
	Tick        Duration `yaml:"tick"`
	Seed        int64    `yaml:"seed"`
}

// Stats tunes the collector.
type Stats struct {
	CandleInterval Duration `yaml:"candle_interval"`
	TapeSize       int      `yaml:"tape_size"`
}

// Server is a listen address toggle for the feed and metrics endpoints.
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Logging selects the zap profile.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// KnownStrategies are the accepted TraderSpec.Strategy values.
var KnownStrategies = map[string]bool{
	"conservative": true,
	"momentum":     true,
	"herd":         true,
}

// Default returns a one-hour simulated session compressed into one
// real minute, with one trader of each personality.
func Default() Config {
	return Config{
		Session: Session{
			AccelerationFactor: 60,
			SimulatedDuration:  Duration(time.Hour),
			Grace:              Duration(2 * time.Second),
		},
		Market: Market{
			Symbol:          "AAPL",
			InitialPrice:    100,
			BaseSpread:      0.004,
			ImbalanceWeight: 0.5,
			SpreadVolWeight: 10,
			WalkWeight:      0.3,
			BaseVolatility:  0.01,
			QuoteInterval:   Duration(5 * time.Second),
			DealerCash:      1e12,
			DealerShares:    1_000_000_000,
		},
		Scenario: Scenario{
			Tick:          Duration(10 * time.Second),
			NewsPerSecond: 2,
			NewsBurst:     4,
		},
		Traders: []TraderSpec{
			{Name: "prudence", Strategy: "conservative", InitialCash: 1000, Tick: Duration(15 * time.Second)},
			{Name: "chaser", Strategy: "momentum", InitialCash: 1000, Tick: Duration(10 * time.Second)},
			{Name: "lemming", Strategy: "herd", InitialCash: 1000, Tick: Duration(10 * time.Second)},
		},
		Stats: Stats{
			CandleInterval: Duration(time.Minute),
			TapeSize:       200,
		},
		Feed:    Server{Enabled: false, Addr: ":8801"},
		Metrics: Server{Enabled: false, Addr: ":8802"},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the session cannot run with.
func (c Config) Validate() error {
	if c.Session.AccelerationFactor <= 0 {
		return fmt.Errorf("session.acceleration_factor must be positive, got %v", c.Session.AccelerationFactor)
	}
	if c.Session.SimulatedDuration <= 0 {
		return fmt.Errorf("session.simulated_duration must be positive")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.InitialPrice <= 0 {
		return fmt.Errorf("market.initial_price must be positive, got %v", c.Market.InitialPrice)
	}
	for i, spec := range c.Traders {
		if !KnownStrategies[spec.Strategy] {
			return fmt.Errorf("traders[%d]: unknown strategy %q", i, spec.Strategy)
		}
		if spec.InitialCash <= 0 {
			return fmt.Errorf("traders[%d]: initial_cash must be positive, got %v", i, spec.InitialCash)
		}
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		return fmt.Errorf("feed.addr is required when the feed is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
