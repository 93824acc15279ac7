// Package strategy holds the trading personalities and the agent
// harness that runs one. A strategy is a pure decision function over a
// bounded local view; the harness keeps the view current from
// broadcasts and submits the decided orders to the market maker.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
)

// View is a trader's bounded local picture of the market. It is owned
// by the trader's goroutine; strategies read it during Decide and never
// retain it.
type View struct {
	Symbol string

	// Quote is the latest broadcast quote; zero before the first one.
	Quote   market.Quote
	HasData bool

	// Mids holds recent mid prices, oldest first.
	Mids []float64

	// Sentiment is a decaying accumulator fed by news flashes, positive
	// for good news. Roughly bounded to [-2, 2] by the decay.
	Sentiment float64

	// BuyFlow and SellFlow count sides seen in the recent trade tape.
	BuyFlow  int
	SellFlow int

	// Cash and Shares track this trader's own holdings, maintained from
	// order confirms. The ledger remains authoritative; this is the
	// trader's belief.
	Cash   decimal.Decimal
	Shares int64
}

// Mid returns the latest mid as a float, zero before any quote.
func (v *View) Mid() float64 {
	if len(v.Mids) == 0 {
		return 0
	}
	return v.Mids[len(v.Mids)-1]
}

// SMA returns the simple moving average of the last n mids; ok is
// false when fewer than n are known.
func (v *View) SMA(n int) (avg float64, ok bool) {
	if n <= 0 || len(v.Mids) < n {
		return 0, false
	}
	var sum float64
	for _, m := range v.Mids[len(v.Mids)-n:] {
		sum += m
	}
	return sum / float64(n), true
}

// Strategy decides orders from the current view. Implementations are
// parameterized by a Params struct and hold their own random source;
// they must not block.
type Strategy interface {
	Name() string
	Decide(v *View) []wire.OrderRequest
}

// sentimentWeight maps a flash to its contribution to the view's
// sentiment accumulator.
func sentimentWeight(f wire.NewsFlash) float64 {
	var w float64
	switch f.Impact {
	case wire.ImpactLow:
		w = 0.1
	case wire.ImpactMedium:
		w = 0.25
	case wire.ImpactHigh:
		w = 0.5
	}
	switch f.Sentiment {
	case wire.SentimentPositive:
		return w
	case wire.SentimentNegative:
		return -w
	}
	return 0
}
