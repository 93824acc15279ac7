package strategy

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
)

// ConservativeParams tune the conservative personality.
type ConservativeParams struct {
	// MaxPositionValue caps the notional the trader will hold.
	MaxPositionValue float64

	// EntryDiscount is how far below mid (as a fraction) the resting
	// bid is placed.
	EntryDiscount float64

	// TakeProfit is the fractional gain over the average entry that
	// triggers a sell.
	TakeProfit float64

	// MaxVolatility keeps the trader out of rough markets.
	MaxVolatility float64

	// TradeChance gates each decision tick; conservative money mostly
	// sits still.
	TradeChance float64

	OrderSize int64
	Seed      int64
}

// DefaultConservativeParams returns a cautious baseline.
func DefaultConservativeParams() ConservativeParams {
	return ConservativeParams{
		MaxPositionValue: 400,
		EntryDiscount:    0.01,
		TakeProfit:       0.05,
		MaxVolatility:    0.05,
		TradeChance:      0.25,
		OrderSize:        2,
	}
}

// Conservative buys small and slow with resting bids below mid, sells
// into strength once a profit target is met, and steps aside entirely
// when volatility or sentiment turns against it.
type Conservative struct {
	p        ConservativeParams
	rng      *rand.Rand
	avgEntry float64
}

// NewConservative creates a conservative strategy.
func NewConservative(p ConservativeParams) *Conservative {
	def := DefaultConservativeParams()
	if p.MaxPositionValue <= 0 {
		p.MaxPositionValue = def.MaxPositionValue
	}
	if p.EntryDiscount <= 0 {
		p.EntryDiscount = def.EntryDiscount
	}
	if p.TakeProfit <= 0 {
		p.TakeProfit = def.TakeProfit
	}
	if p.MaxVolatility <= 0 {
		p.MaxVolatility = def.MaxVolatility
	}
	if p.TradeChance <= 0 {
		p.TradeChance = def.TradeChance
	}
	if p.OrderSize <= 0 {
		p.OrderSize = def.OrderSize
	}
	return &Conservative{p: p, rng: rand.New(rand.NewSource(seedOr(p.Seed)))}
}

func (s *Conservative) Name() string { return "conservative" }

func (s *Conservative) Decide(v *View) []wire.OrderRequest {
	if !v.HasData || v.Quote.Volatility > s.p.MaxVolatility {
		return nil
	}
	mid := v.Mid()
	if mid <= 0 {
		return nil
	}

	// Take profit regardless of the gate; exits are never skipped.
	if v.Shares > 0 && s.avgEntry > 0 && mid >= s.avgEntry*(1+s.p.TakeProfit) {
		s.avgEntry = 0
		return []wire.OrderRequest{{
			Side:     market.SideSell,
			Symbol:   v.Symbol,
			Quantity: v.Shares,
			Price:    market.MarketPrice(),
		}}
	}

	if s.rng.Float64() >= s.p.TradeChance {
		return nil
	}
	if v.Sentiment < -0.1 {
		return nil
	}
	held := float64(v.Shares) * mid
	if held >= s.p.MaxPositionValue {
		return nil
	}

	bid := decimal.NewFromFloat(mid * (1 - s.p.EntryDiscount)).Round(2)
	if s.avgEntry == 0 {
		s.avgEntry = mid
	} else {
		s.avgEntry = (s.avgEntry + mid) / 2
	}
	return []wire.OrderRequest{{
		Side:     market.SideBuy,
		Symbol:   v.Symbol,
		Quantity: s.p.OrderSize,
		Price:    market.LimitPrice(bid),
	}}
}

func seedOr(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return rand.Int63()
}
