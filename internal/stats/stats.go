// Package stats is the session's passive observer. The collector agent
// consumes the same broadcasts every trader sees and accumulates OHLC
// candles, volume, realized volatility, per-trader activity and a news
// tape. It holds no write path into the ledger; if it stalls, the
// market does not.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

// Config parameterizes a collector.
type Config struct {
	Symbol string

	// CandleInterval is the simulated-time width of one OHLC bucket.
	CandleInterval time.Duration

	// TapeSize caps the trade and news tapes and the candle history.
	TapeSize int
}

// DefaultConfig returns one-minute simulated candles and a 200-entry
// tape.
func DefaultConfig() Config {
	return Config{
		Symbol:         "AAPL",
		CandleInterval: time.Minute,
		TapeSize:       200,
	}
}

// Candle is one closed OHLC bucket.
type Candle struct {
	Start  time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Snapshot is a point-in-time copy of everything the collector knows,
// safe to hand to the TUI or the feed.
type Snapshot struct {
	Symbol    string
	LastQuote market.Quote

	Candles     []Candle
	Live        Candle
	TotalVolume int64

	// RealizedVolatility is the standard deviation of recent mid
	// returns as observed from the quote stream.
	RealizedVolatility float64

	TradeCounts map[string]int64
	Trades      []wire.TradeNotice
	News        []wire.NewsFlash

	TradesSeen int64
	Duplicates int64
}

// Collector subscribes to market data, trades and news and aggregates
// them for reporting.
type Collector struct {
	cfg Config
	log *zap.Logger
	reg *registry.Registry

	self           agent.AID
	candleInterval time.Duration // real time, scaled at bootstrap

	mu sync.RWMutex

	lastQuote market.Quote
	mids      []float64

	live    Candle
	candles []Candle
	volume  int64

	seen        map[uuid.UUID]struct{}
	tradeCounts map[string]int64
	trades      []wire.TradeNotice
	news        []wire.NewsFlash
	tradesSeen  int64
	duplicates  int64
}

// New creates a collector.
func New(cfg Config, reg *registry.Registry, log *zap.Logger) *Collector {
	def := DefaultConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.CandleInterval <= 0 {
		cfg.CandleInterval = def.CandleInterval
	}
	if cfg.TapeSize <= 0 {
		cfg.TapeSize = def.TapeSize
	}
	return &Collector{
		cfg:         cfg,
		log:         log.Named("stats"),
		reg:         reg,
		seen:        make(map[uuid.UUID]struct{}),
		tradeCounts: make(map[string]int64),
	}
}

// Behaviours returns the agent behaviours to spawn the collector with.
func (c *Collector) Behaviours() []agent.Behaviour {
	return []agent.Behaviour{
		agent.OneShot{Name: "stats-bootstrap", Fn: c.bootstrap},
		agent.Cyclic{
			Name:  "stats-quotes",
			Match: agent.Pattern{Topic: agent.TopicMarketData, Performative: agent.Inform},
			Fn:    c.onQuote,
		},
		agent.Cyclic{
			Name:  "stats-trades",
			Match: agent.Pattern{Topic: agent.TopicTradeExecuted, Performative: agent.Inform},
			Fn:    c.onTrade,
		},
		agent.Cyclic{
			Name:  "stats-news",
			Match: agent.Pattern{Topic: agent.TopicNews, Performative: agent.Inform},
			Fn:    c.onNews,
		},
	}
}

// bootstrap registers the observer capability and subscribes to the
// maker's quote stream. The maker may not have bootstrapped yet, so the
// lookup retries with exponential backoff; on a final miss the
// collector still aggregates whatever broadcasts reach it.
func (c *Collector) bootstrap(ctx *agent.Ctx) {
	c.self = ctx.Self()
	c.candleInterval = ctx.Clock().Scale(c.cfg.CandleInterval)
	c.reg.Register(c.self, registry.CapabilityObserver)

	maker, ok := c.reg.AwaitFirst(registry.CapabilityMarketMaker, 8)
	if !ok {
		c.log.Warn("no market maker found, collecting broadcasts only")
		return
	}
	_ = ctx.Send(agent.Envelope{
		Sender:       c.self,
		Receivers:    []agent.AID{maker},
		Performative: agent.Subscribe,
		Topic:        agent.TopicMarketDataSub,
		Payload:      wire.MarketDataSubscribe{Symbol: c.cfg.Symbol},
	})
	if _, ok := ctx.Receive(agent.Pattern{Topic: agent.TopicMarketDataSub, Performative: agent.Confirm}, time.Second); !ok {
		c.log.Warn("market data subscription unconfirmed")
	}
}

func (c *Collector) onQuote(ctx *agent.Ctx, e agent.Envelope) {
	qd, ok := e.Payload.(wire.QuoteData)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastQuote = qd.Quote
	mid, _ := qd.Quote.Mid.Float64()
	c.mids = append(c.mids, mid)
	if len(c.mids) > c.cfg.TapeSize {
		c.mids = c.mids[len(c.mids)-c.cfg.TapeSize:]
	}
}

func (c *Collector) onTrade(ctx *agent.Ctx, e agent.Envelope) {
	notice, ok := e.Payload.(wire.TradeNotice)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Broadcast redelivery must not double-count.
	if _, dup := c.seen[notice.TradeID]; dup {
		c.duplicates++
		return
	}
	c.seen[notice.TradeID] = struct{}{}

	c.tradesSeen++
	c.volume += notice.Quantity
	c.tradeCounts[notice.TraderID]++

	c.trades = append(c.trades, notice)
	if len(c.trades) > c.cfg.TapeSize {
		c.trades = c.trades[len(c.trades)-c.cfg.TapeSize:]
	}

	c.addToCandle(notice, time.Now())
}

func (c *Collector) onNews(ctx *agent.Ctx, e agent.Envelope) {
	flash, ok := e.Payload.(wire.NewsFlash)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.news = append(c.news, flash)
	if len(c.news) > c.cfg.TapeSize {
		c.news = c.news[len(c.news)-c.cfg.TapeSize:]
	}
}

// addToCandle folds a trade into the live bucket, rolling it when the
// bucket's interval has elapsed. Caller holds c.mu.
func (c *Collector) addToCandle(n wire.TradeNotice, now time.Time) {
	interval := c.candleInterval
	if interval <= 0 {
		interval = c.cfg.CandleInterval
	}
	if !c.live.Start.IsZero() && now.Sub(c.live.Start) >= interval {
		c.candles = append(c.candles, c.live)
		if len(c.candles) > c.cfg.TapeSize {
			c.candles = c.candles[len(c.candles)-c.cfg.TapeSize:]
		}
		c.live = Candle{}
	}
	if c.live.Start.IsZero() {
		c.live = Candle{Start: now, Open: n.Price, High: n.Price, Low: n.Price}
	}
	if n.Price.GreaterThan(c.live.High) {
		c.live.High = n.Price
	}
	if n.Price.LessThan(c.live.Low) {
		c.live.Low = n.Price
	}
	c.live.Close = n.Price
	c.live.Volume += n.Quantity
}

// Snapshot returns a deep copy of the collector's state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Symbol:             c.cfg.Symbol,
		LastQuote:          c.lastQuote,
		Live:               c.live,
		TotalVolume:        c.volume,
		RealizedVolatility: stddevReturns(c.mids),
		TradesSeen:         c.tradesSeen,
		Duplicates:         c.duplicates,
		Candles:            append([]Candle(nil), c.candles...),
		Trades:             append([]wire.TradeNotice(nil), c.trades...),
		News:               append([]wire.NewsFlash(nil), c.news...),
		TradeCounts:        make(map[string]int64, len(c.tradeCounts)),
	}
	for k, v := range c.tradeCounts {
		s.TradeCounts[k] = v
	}
	return s
}

func stddevReturns(mids []float64) float64 {
	if len(mids) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		if mids[i-1] != 0 {
			returns = append(returns, (mids[i]-mids[i-1])/mids[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)-1))
}
