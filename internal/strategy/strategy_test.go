package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
)

func viewWithMids(mids ...float64) *View {
	v := &View{Symbol: "AAPL", HasData: true, Mids: mids, Cash: decimal.NewFromInt(1000)}
	if len(mids) > 0 {
		last := mids[len(mids)-1]
		v.Quote = market.Quote{
			Symbol: "AAPL",
			Bid:    decimal.NewFromFloat(last - 0.1),
			Mid:    decimal.NewFromFloat(last),
			Ask:    decimal.NewFromFloat(last + 0.1),
		}
	}
	return v
}

func TestViewSMA(t *testing.T) {
	v := viewWithMids(1, 2, 3, 4)

	avg, ok := v.SMA(2)
	require.True(t, ok)
	assert.InDelta(t, 3.5, avg, 1e-9)

	_, ok = v.SMA(5)
	assert.False(t, ok)
}

func TestConservativeSitsOutVolatileMarkets(t *testing.T) {
	s := NewConservative(ConservativeParams{Seed: 1, TradeChance: 1})
	v := viewWithMids(100)
	v.Quote.Volatility = 0.2

	assert.Empty(t, s.Decide(v))
}

func TestConservativeBuysWithRestingBidBelowMid(t *testing.T) {
	s := NewConservative(ConservativeParams{Seed: 1, TradeChance: 1})
	v := viewWithMids(100)

	orders := s.Decide(v)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, market.SideBuy, o.Side)
	require.False(t, o.Price.AtMarket)
	assert.True(t, o.Price.Limit.LessThan(decimal.NewFromInt(100)),
		"bid %s not below mid", o.Price.Limit)
}

func TestConservativeTakesProfit(t *testing.T) {
	s := NewConservative(ConservativeParams{Seed: 1, TradeChance: 1, TakeProfit: 0.05})
	v := viewWithMids(100)
	require.Len(t, s.Decide(v), 1) // establishes the entry

	v = viewWithMids(110)
	v.Shares = 2
	orders := s.Decide(v)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideSell, orders[0].Side)
	assert.Equal(t, int64(2), orders[0].Quantity)
	assert.True(t, orders[0].Price.AtMarket)
}

func TestMomentumFollowsTheCross(t *testing.T) {
	s := NewMomentum(MomentumParams{ShortWindow: 2, LongWindow: 4, Threshold: 0.001, OrderSize: 3, Seed: 1})

	up := viewWithMids(100, 100, 103, 106)
	orders := s.Decide(up)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideBuy, orders[0].Side)
	assert.True(t, orders[0].Price.AtMarket)

	down := viewWithMids(106, 106, 103, 100)
	down.Shares = 5
	orders = s.Decide(down)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideSell, orders[0].Side)
	assert.Equal(t, int64(5), orders[0].Quantity)
}

func TestMomentumWaitsForHistory(t *testing.T) {
	s := NewMomentum(MomentumParams{ShortWindow: 2, LongWindow: 10, Seed: 1})
	assert.Empty(t, s.Decide(viewWithMids(100, 101)))
}

func TestHerdJoinsTheCrowd(t *testing.T) {
	s := NewHerd(HerdParams{Seed: 1})
	v := viewWithMids(100)
	v.BuyFlow, v.SellFlow = 9, 1

	orders := s.Decide(v)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideBuy, orders[0].Side)
}

func TestHerdPanicSellsOnCrateredSentiment(t *testing.T) {
	s := NewHerd(HerdParams{Seed: 1})
	v := viewWithMids(100)
	v.Shares = 8
	v.Sentiment = -1.2

	orders := s.Decide(v)
	require.Len(t, orders, 1)
	assert.Equal(t, market.SideSell, orders[0].Side)
	assert.Equal(t, int64(8), orders[0].Quantity)
	assert.True(t, orders[0].Price.AtMarket)
}

func TestSentimentWeights(t *testing.T) {
	pos := wire.NewsFlash{Sentiment: wire.SentimentPositive, Impact: wire.ImpactHigh}
	neg := wire.NewsFlash{Sentiment: wire.SentimentNegative, Impact: wire.ImpactLow}
	neutral := wire.NewsFlash{Sentiment: wire.SentimentNeutral, Impact: wire.ImpactHigh}

	assert.InDelta(t, 0.5, sentimentWeight(pos), 1e-9)
	assert.InDelta(t, -0.1, sentimentWeight(neg), 1e-9)
	assert.Zero(t, sentimentWeight(neutral))
}
