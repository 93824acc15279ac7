// Package session assembles a full market simulation from a Config:
// runtime, registry, maker, scenario controller, stats collector, feed
// bridge and the strategy agents. It owns the session lifecycle from
// spawn to graceful teardown.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/config"
	"github.com/pchave/agentmarket/internal/feed"
	"github.com/pchave/agentmarket/internal/market/maker"
	"github.com/pchave/agentmarket/internal/metrics"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/scenario"
	"github.com/pchave/agentmarket/internal/stats"
	"github.com/pchave/agentmarket/internal/strategy"
)

// Session owns every subsystem of one simulation run.
type Session struct {
	cfg config.Config
	log *zap.Logger

	Runtime  *agent.Runtime
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Maker    *maker.MarketMaker
	Scenario *scenario.Controller
	Stats    *stats.Collector
	Feed     *feed.Bridge // nil unless enabled

	// MakerAID identifies the dealer's own ledger account, so displays
	// can separate it from trader portfolios.
	MakerAID agent.AID

	closeOnce sync.Once
}

// New builds and spawns the whole cast. Agents begin running
// immediately; call Run to block for the session duration.
func New(cfg config.Config, log *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	clock := agent.NewClock(cfg.Session.AccelerationFactor)
	s := &Session{
		cfg:      cfg,
		log:      log.Named("session"),
		Runtime:  agent.NewRuntime(clock, log),
		Registry: registry.New(),
		Metrics:  metrics.New(),
	}

	s.Maker = maker.New(maker.Config{
		Symbol:          cfg.Market.Symbol,
		InitialPrice:    cfg.Market.InitialPrice,
		BaseSpread:      cfg.Market.BaseSpread,
		ImbalanceWeight: cfg.Market.ImbalanceWeight,
		SpreadVolWeight: cfg.Market.SpreadVolWeight,
		WalkWeight:      cfg.Market.WalkWeight,
		BaseVolatility:  cfg.Market.BaseVolatility,
		QuoteInterval:   cfg.Market.QuoteInterval.Std(),
		CommissionRate:  cfg.Market.CommissionRate,
		DealerCash:      cfg.Market.DealerCash,
		DealerShares:    cfg.Market.DealerShares,
		Seed:            cfg.Market.Seed,
	}, s.Registry, s.Metrics, log)
	s.MakerAID = s.Runtime.Spawn("maker", s.Maker.Behaviours()...).Self()

	s.Stats = stats.New(stats.Config{
		Symbol:         cfg.Market.Symbol,
		CandleInterval: cfg.Stats.CandleInterval.Std(),
		TapeSize:       cfg.Stats.TapeSize,
	}, s.Registry, log)
	s.Runtime.Spawn("stats", s.Stats.Behaviours()...)

	if cfg.Feed.Enabled {
		s.Feed = feed.New(feed.Config{Symbol: cfg.Market.Symbol}, s.Registry, log)
		s.Runtime.Spawn("feed", s.Feed.Behaviours()...)
	}

	for _, spec := range cfg.Traders {
		strat, err := buildStrategy(spec)
		if err != nil {
			return nil, err
		}
		tr := strategy.NewTrader(strategy.TraderConfig{
			Symbol:      cfg.Market.Symbol,
			InitialCash: decimal.NewFromFloat(spec.InitialCash),
			Tick:        spec.Tick.Std(),
		}, strat, s.Registry, log)
		s.Runtime.Spawn(spec.Name, tr.Behaviours()...)
	}

	// The controller spawns last so its first news already has an
	// audience in the registry.
	s.Scenario = scenario.New(scenario.Config{
		Symbol:            cfg.Market.Symbol,
		SimulatedDuration: cfg.Session.SimulatedDuration.Std(),
		Tick:              cfg.Scenario.Tick.Std(),
		NewsPerSecond:     cfg.Scenario.NewsPerSecond,
		NewsBurst:         cfg.Scenario.NewsBurst,
		Seed:              cfg.Scenario.Seed,
	}, s.Registry, s.Metrics, log)
	s.Runtime.Spawn("scenario", s.Scenario.Behaviours()...)

	return s, nil
}

func buildStrategy(spec config.TraderSpec) (strategy.Strategy, error) {
	switch spec.Strategy {
	case "conservative":
		p := strategy.DefaultConservativeParams()
		p.Seed = spec.Seed
		return strategy.NewConservative(p), nil
	case "momentum":
		p := strategy.DefaultMomentumParams()
		p.Seed = spec.Seed
		return strategy.NewMomentum(p), nil
	case "herd":
		p := strategy.DefaultHerdParams()
		p.Seed = spec.Seed
		return strategy.NewHerd(p), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", spec.Strategy)
}

// Duration returns the real wall-clock length of the session.
func (s *Session) Duration() time.Duration {
	return s.Runtime.Clock().Scale(s.cfg.Session.SimulatedDuration.Std())
}

// Run blocks until the session's scaled duration elapses or the context
// is cancelled, then tears everything down.
func (s *Session) Run(ctx context.Context) error {
	real := s.Duration()
	s.log.Info("session running",
		zap.Duration("simulated", s.cfg.Session.SimulatedDuration.Std()),
		zap.Duration("real", real),
		zap.Float64("factor", s.cfg.Session.AccelerationFactor),
	)

	timer := time.NewTimer(real)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.log.Info("session interrupted")
	case <-timer.C:
		s.log.Info("session complete")
	}

	s.Close()
	return ctx.Err()
}

// Close tears the session down in reverse dependency order: periodic
// behaviours quiesce, agents get the configured grace to flush, then
// the feed's clients are cut loose.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Runtime.Close(s.cfg.Session.Grace.Std())
		if s.Feed != nil {
			s.Feed.Close()
		}
		snap := s.Stats.Snapshot()
		s.log.Info("final tally",
			zap.Int64("trades", snap.TradesSeen),
			zap.Int64("volume", snap.TotalVolume),
			zap.Int64("delivered", s.Runtime.Delivered()),
			zap.Int64("dropped", s.Runtime.Dropped()),
		)
	})
}
