package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

func newCollector() *Collector {
	return New(DefaultConfig(), registry.New(), zap.NewNop())
}

func notice(price float64, qty int64, trader string) wire.TradeNotice {
	return wire.TradeNotice{
		TradeID:  market.NewTradeID(),
		TraderID: trader,
		Symbol:   "AAPL",
		Quantity: qty,
		Price:    decimal.NewFromFloat(price),
		Side:     market.SideBuy,
	}
}

func deliver(c *Collector, n wire.TradeNotice) {
	c.onTrade(nil, agent.Envelope{Payload: n})
}

func TestRedeliveredTradeCountsOnce(t *testing.T) {
	c := newCollector()
	n := notice(100, 5, "alice")

	deliver(c, n)
	deliver(c, n)
	deliver(c, n)

	s := c.Snapshot()
	assert.Equal(t, int64(1), s.TradesSeen)
	assert.Equal(t, int64(2), s.Duplicates)
	assert.Equal(t, int64(5), s.TotalVolume)
	assert.Equal(t, int64(1), s.TradeCounts["alice"])
	require.Len(t, s.Trades, 1)
}

func TestPerTraderCounts(t *testing.T) {
	c := newCollector()
	deliver(c, notice(100, 1, "alice"))
	deliver(c, notice(101, 2, "alice"))
	deliver(c, notice(102, 3, "bob"))

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.TradeCounts["alice"])
	assert.Equal(t, int64(1), s.TradeCounts["bob"])
	assert.Equal(t, int64(6), s.TotalVolume)
}

func TestCandleRollsOnInterval(t *testing.T) {
	c := newCollector()
	c.candleInterval = time.Minute
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	c.mu.Lock()
	c.addToCandle(notice(100, 1, "a"), base)
	c.addToCandle(notice(105, 2, "a"), base.Add(10*time.Second))
	c.addToCandle(notice(95, 1, "a"), base.Add(30*time.Second))
	c.addToCandle(notice(98, 4, "a"), base.Add(70*time.Second)) // next bucket
	c.mu.Unlock()

	s := c.Snapshot()
	require.Len(t, s.Candles, 1)
	closed := s.Candles[0]
	assert.True(t, closed.Open.Equal(decimal.NewFromInt(100)), "open %s", closed.Open)
	assert.True(t, closed.High.Equal(decimal.NewFromInt(105)), "high %s", closed.High)
	assert.True(t, closed.Low.Equal(decimal.NewFromInt(95)), "low %s", closed.Low)
	assert.True(t, closed.Close.Equal(decimal.NewFromInt(95)), "close %s", closed.Close)
	assert.Equal(t, int64(4), closed.Volume)

	assert.True(t, s.Live.Open.Equal(decimal.NewFromInt(98)))
	assert.Equal(t, int64(4), s.Live.Volume)
}

func TestQuoteStreamFeedsVolatility(t *testing.T) {
	c := newCollector()
	mids := []float64{100, 101, 100.5, 102, 101, 103}
	for _, m := range mids {
		c.onQuote(nil, agent.Envelope{Payload: wire.QuoteData{Quote: market.Quote{
			Symbol: "AAPL",
			Bid:    decimal.NewFromFloat(m - 0.1),
			Mid:    decimal.NewFromFloat(m),
			Ask:    decimal.NewFromFloat(m + 0.1),
		}}})
	}
	s := c.Snapshot()
	assert.True(t, s.LastQuote.Mid.Equal(decimal.NewFromInt(103)))
	assert.Greater(t, s.RealizedVolatility, 0.0)
}

func TestNewsTapeIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TapeSize = 3
	c := New(cfg, registry.New(), zap.NewNop())

	for i := 0; i < 5; i++ {
		c.onNews(nil, agent.Envelope{Payload: wire.NewsFlash{
			Sentiment: wire.SentimentNeutral,
			Headline:  "headline",
			Impact:    wire.ImpactLow,
		}})
	}
	assert.Len(t, c.Snapshot().News, 3)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newCollector()
	deliver(c, notice(100, 1, "alice"))

	s := c.Snapshot()
	s.TradeCounts["alice"] = 99
	s.Trades[0].Quantity = 99

	fresh := c.Snapshot()
	assert.Equal(t, int64(1), fresh.TradeCounts["alice"])
	assert.Equal(t, int64(1), fresh.Trades[0].Quantity)
}

func TestMalformedPayloadIgnored(t *testing.T) {
	c := newCollector()
	c.onTrade(nil, agent.Envelope{Payload: "TRADE:alice:AAPL:1:100.00:BUY"})
	c.onQuote(nil, agent.Envelope{Payload: 42})
	c.onNews(nil, agent.Envelope{Payload: struct{}{}})

	s := c.Snapshot()
	assert.Zero(t, s.TradesSeen)
	assert.Empty(t, s.News)
}
