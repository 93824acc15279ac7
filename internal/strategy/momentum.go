package strategy

import (
	"math/rand"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
)

// MomentumParams tune the momentum personality.
type MomentumParams struct {
	// ShortWindow and LongWindow are the two moving-average lengths in
	// ticks; a short above long reads as an uptrend.
	ShortWindow int
	LongWindow  int

	// Threshold is the minimum fractional gap between the averages
	// before the signal is acted on.
	Threshold float64

	OrderSize int64
	Seed      int64
}

// DefaultMomentumParams returns a fast/slow crossover baseline.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{
		ShortWindow: 3,
		LongWindow:  10,
		Threshold:   0.002,
		OrderSize:   3,
	}
}

// Momentum chases the trend: it buys at market while the short average
// runs above the long one and dumps the position when the cross flips.
type Momentum struct {
	p   MomentumParams
	rng *rand.Rand
}

// NewMomentum creates a momentum strategy.
func NewMomentum(p MomentumParams) *Momentum {
	def := DefaultMomentumParams()
	if p.ShortWindow <= 0 {
		p.ShortWindow = def.ShortWindow
	}
	if p.LongWindow <= p.ShortWindow {
		p.LongWindow = def.LongWindow
	}
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.OrderSize <= 0 {
		p.OrderSize = def.OrderSize
	}
	return &Momentum{p: p, rng: rand.New(rand.NewSource(seedOr(p.Seed)))}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Decide(v *View) []wire.OrderRequest {
	short, ok := v.SMA(s.p.ShortWindow)
	if !ok {
		return nil
	}
	long, ok := v.SMA(s.p.LongWindow)
	if !ok {
		return nil
	}
	if long <= 0 {
		return nil
	}

	gap := (short - long) / long
	switch {
	case gap > s.p.Threshold:
		return []wire.OrderRequest{{
			Side:     market.SideBuy,
			Symbol:   v.Symbol,
			Quantity: s.p.OrderSize,
			Price:    market.MarketPrice(),
		}}
	case gap < -s.p.Threshold && v.Shares > 0:
		return []wire.OrderRequest{{
			Side:     market.SideSell,
			Symbol:   v.Symbol,
			Quantity: v.Shares,
			Price:    market.MarketPrice(),
		}}
	}
	return nil
}
