package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

// TraderConfig parameterizes a trader harness.
type TraderConfig struct {
	Symbol      string
	InitialCash decimal.Decimal

	// Tick is the simulated interval between decision steps.
	Tick time.Duration

	// ViewDepth bounds the mid history; TapeDepth bounds the trade
	// flow window.
	ViewDepth int
	TapeDepth int

	// SentimentDecay is applied to the view's sentiment accumulator
	// every decision tick.
	SentimentDecay float64
}

// DefaultTraderConfig returns a trader deciding every ten simulated
// seconds.
func DefaultTraderConfig() TraderConfig {
	return TraderConfig{
		Symbol:         "AAPL",
		InitialCash:    decimal.NewFromInt(1000),
		Tick:           10 * time.Second,
		ViewDepth:      64,
		TapeDepth:      32,
		SentimentDecay: 0.9,
	}
}

// Trader runs one strategy as an agent: it keeps the local view fed
// from broadcasts and submits the strategy's orders to the maker.
type Trader struct {
	cfg   TraderConfig
	log   *zap.Logger
	reg   *registry.Registry
	strat Strategy

	self  agent.AID
	maker agent.AID
	ready bool

	view  View
	sides []market.Side
}

// NewTrader creates a trader running the given strategy.
func NewTrader(cfg TraderConfig, strat Strategy, reg *registry.Registry, log *zap.Logger) *Trader {
	def := DefaultTraderConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.InitialCash.LessThanOrEqual(decimal.Zero) {
		cfg.InitialCash = def.InitialCash
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.ViewDepth <= 0 {
		cfg.ViewDepth = def.ViewDepth
	}
	if cfg.TapeDepth <= 0 {
		cfg.TapeDepth = def.TapeDepth
	}
	if cfg.SentimentDecay <= 0 || cfg.SentimentDecay >= 1 {
		cfg.SentimentDecay = def.SentimentDecay
	}
	return &Trader{
		cfg:   cfg,
		log:   log.Named("trader").With(zap.String("strategy", strat.Name())),
		reg:   reg,
		strat: strat,
		view:  View{Symbol: cfg.Symbol, Cash: cfg.InitialCash},
	}
}

// Behaviours returns the agent behaviours to spawn the trader with.
func (t *Trader) Behaviours() []agent.Behaviour {
	return []agent.Behaviour{
		agent.OneShot{Name: "trader-bootstrap", Fn: t.bootstrap},
		agent.Cyclic{
			Name:  "trader-quotes",
			Match: agent.Pattern{Topic: agent.TopicMarketData, Performative: agent.Inform},
			Fn:    t.onQuote,
		},
		agent.Cyclic{
			Name:  "trader-news",
			Match: agent.Pattern{Topic: agent.TopicNews, Performative: agent.Inform},
			Fn:    t.onNews,
		},
		agent.Cyclic{
			Name:  "trader-tape",
			Match: agent.Pattern{Topic: agent.TopicTradeExecuted, Performative: agent.Inform},
			Fn:    t.onTradeNotice,
		},
		agent.Cyclic{
			Name:  "trader-confirms",
			Match: agent.Pattern{Topic: agent.TopicTrading, Performative: agent.Confirm},
			Fn:    t.onConfirm,
		},
		agent.Cyclic{
			Name:  "trader-refusals",
			Match: agent.Pattern{Topic: agent.TopicTrading, Performative: agent.Refuse},
			Fn:    t.onRefuse,
		},
		agent.Ticker{Name: "trader-decide", Every: t.cfg.Tick, Fn: t.decide},
	}
}

// bootstrap resolves the maker, funds the account and subscribes to
// market data. On a registry miss the trader degrades to never trading
// instead of failing.
func (t *Trader) bootstrap(ctx *agent.Ctx) {
	t.self = ctx.Self()
	t.reg.Register(t.self, registry.CapabilityTrader)

	maker, ok := t.reg.AwaitFirst(registry.CapabilityMarketMaker, 8)
	if !ok {
		t.log.Warn("no market maker found, trader will not trade")
		return
	}
	t.maker = maker

	_ = ctx.Send(agent.Envelope{
		Sender:       t.self,
		Receivers:    []agent.AID{maker},
		Performative: agent.Request,
		Topic:        agent.TopicPortfolio,
		Payload:      wire.RegisterRequest{InitialCash: t.cfg.InitialCash},
	})
	if e, ok := ctx.Receive(agent.Pattern{Topic: agent.TopicPortfolio}, 2*time.Second); !ok || e.Performative != agent.Confirm {
		t.log.Warn("portfolio registration failed, trader will not trade")
		return
	}

	_ = ctx.Send(agent.Envelope{
		Sender:       t.self,
		Receivers:    []agent.AID{maker},
		Performative: agent.Subscribe,
		Topic:        agent.TopicMarketDataSub,
		Payload:      wire.MarketDataSubscribe{Symbol: t.cfg.Symbol},
	})
	if _, ok := ctx.Receive(agent.Pattern{Topic: agent.TopicMarketDataSub, Performative: agent.Confirm}, 2*time.Second); !ok {
		t.log.Warn("market data subscription unconfirmed")
	}

	t.ready = true
	t.log.Info("trader online", zap.String("cash", t.cfg.InitialCash.StringFixed(2)))
}

func (t *Trader) onQuote(ctx *agent.Ctx, e agent.Envelope) {
	qd, ok := e.Payload.(wire.QuoteData)
	if !ok || qd.Quote.Symbol != t.cfg.Symbol {
		return
	}
	t.view.Quote = qd.Quote
	t.view.HasData = true
	mid, _ := qd.Quote.Mid.Float64()
	t.view.Mids = append(t.view.Mids, mid)
	if len(t.view.Mids) > t.cfg.ViewDepth {
		t.view.Mids = t.view.Mids[len(t.view.Mids)-t.cfg.ViewDepth:]
	}
}

func (t *Trader) onNews(ctx *agent.Ctx, e agent.Envelope) {
	flash, ok := e.Payload.(wire.NewsFlash)
	if !ok {
		return
	}
	t.view.Sentiment += sentimentWeight(flash)
}

func (t *Trader) onTradeNotice(ctx *agent.Ctx, e agent.Envelope) {
	notice, ok := e.Payload.(wire.TradeNotice)
	if !ok {
		return
	}
	t.sides = append(t.sides, notice.Side)
	if len(t.sides) > t.cfg.TapeDepth {
		t.sides = t.sides[len(t.sides)-t.cfg.TapeDepth:]
	}
	t.view.BuyFlow, t.view.SellFlow = 0, 0
	for _, s := range t.sides {
		if s == market.SideBuy {
			t.view.BuyFlow++
		} else {
			t.view.SellFlow++
		}
	}
}

func (t *Trader) onConfirm(ctx *agent.Ctx, e agent.Envelope) {
	exec, ok := e.Payload.(wire.OrderExecuted)
	if !ok {
		return
	}
	cost := exec.Price.Mul(decimal.NewFromInt(exec.Quantity))
	if exec.Side == market.SideBuy {
		t.view.Cash = t.view.Cash.Sub(cost)
		t.view.Shares += exec.Quantity
	} else {
		t.view.Cash = t.view.Cash.Add(cost)
		t.view.Shares -= exec.Quantity
	}
}

func (t *Trader) onRefuse(ctx *agent.Ctx, e agent.Envelope) {
	if rej, ok := e.Payload.(wire.OrderRejected); ok {
		t.log.Debug("order refused", zap.String("reason", rej.Reason))
	}
}

func (t *Trader) decide(ctx *agent.Ctx, now time.Time) {
	t.view.Sentiment *= t.cfg.SentimentDecay
	if !t.ready {
		return
	}
	for _, req := range t.strat.Decide(&t.view) {
		probe := market.Order{
			Owner:       t.self,
			Side:        req.Side,
			Symbol:      req.Symbol,
			Quantity:    req.Quantity,
			Price:       req.Price,
			SubmittedAt: now,
		}
		if err := probe.Validate(); err != nil {
			t.log.Warn("strategy produced invalid order", zap.Error(err))
			continue
		}
		_ = ctx.Send(agent.Envelope{
			Sender:       t.self,
			Receivers:    []agent.AID{t.maker},
			Performative: agent.Request,
			Topic:        agent.TopicTrading,
			Payload:      req,
		})
	}
}
