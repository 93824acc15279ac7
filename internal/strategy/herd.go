package strategy

import (
	"math/rand"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
)

// HerdParams tune the herd-follower personality.
type HerdParams struct {
	// CrowdThreshold is the buy-flow share of recent trades that reads
	// as a stampede worth joining.
	CrowdThreshold float64

	// SentimentWeight scales how strongly news tilts the decision.
	SentimentWeight float64

	// PanicSentiment is the sentiment level below which the follower
	// dumps everything.
	PanicSentiment float64

	OrderSize int64
	Seed      int64
}

// DefaultHerdParams returns an excitable baseline.
func DefaultHerdParams() HerdParams {
	return HerdParams{
		CrowdThreshold:  0.65,
		SentimentWeight: 0.3,
		PanicSentiment:  -0.5,
		OrderSize:       4,
	}
}

// Herd trades on what everyone else is doing: it buys when the recent
// tape and the news both lean bullish and panic-sells the whole
// position when sentiment craters.
type Herd struct {
	p   HerdParams
	rng *rand.Rand
}

// NewHerd creates a herd-follower strategy.
func NewHerd(p HerdParams) *Herd {
	def := DefaultHerdParams()
	if p.CrowdThreshold <= 0 || p.CrowdThreshold > 1 {
		p.CrowdThreshold = def.CrowdThreshold
	}
	if p.SentimentWeight <= 0 {
		p.SentimentWeight = def.SentimentWeight
	}
	if p.PanicSentiment >= 0 {
		p.PanicSentiment = def.PanicSentiment
	}
	if p.OrderSize <= 0 {
		p.OrderSize = def.OrderSize
	}
	return &Herd{p: p, rng: rand.New(rand.NewSource(seedOr(p.Seed)))}
}

func (s *Herd) Name() string { return "herd" }

func (s *Herd) Decide(v *View) []wire.OrderRequest {
	if !v.HasData {
		return nil
	}

	if v.Shares > 0 && v.Sentiment <= s.p.PanicSentiment {
		return []wire.OrderRequest{{
			Side:     market.SideSell,
			Symbol:   v.Symbol,
			Quantity: v.Shares,
			Price:    market.MarketPrice(),
		}}
	}

	total := v.BuyFlow + v.SellFlow
	if total == 0 {
		return nil
	}
	buyShare := float64(v.BuyFlow)/float64(total) + v.Sentiment*s.p.SentimentWeight

	switch {
	case buyShare >= s.p.CrowdThreshold:
		return []wire.OrderRequest{{
			Side:     market.SideBuy,
			Symbol:   v.Symbol,
			Quantity: s.p.OrderSize,
			Price:    market.MarketPrice(),
		}}
	case buyShare <= 1-s.p.CrowdThreshold && v.Shares > 0:
		qty := v.Shares / 2
		if qty == 0 {
			qty = v.Shares
		}
		return []wire.OrderRequest{{
			Side:     market.SideSell,
			Symbol:   v.Symbol,
			Quantity: qty,
			Price:    market.MarketPrice(),
		}}
	}
	return nil
}
