// Package maker implements the price-making authority. It composes the
// order book, the ledger and a pricing function; it is the sole writer
// of the authoritative quote and the sole executor of trades. All of
// its behaviours run on one agent goroutine, so ledger and book
// mutations are serialized without a single explicit lock on the hot
// path, and two concurrent orders can never both pass a check against
// a stale balance.
package maker

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/market/book"
	"github.com/pchave/agentmarket/internal/market/ledger"
	"github.com/pchave/agentmarket/internal/metrics"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

// Refusal reasons on the wire.
const (
	ReasonNotRegistered      = "not registered"
	ReasonUnknownSymbol      = "unknown symbol"
	ReasonInsufficientCash   = "insufficient cash"
	ReasonInsufficientShares = "insufficient shares"
	ReasonMalformedOrder     = "malformed order"
)

// MarketMaker owns the authoritative quote, the order book and the
// portfolio ledger.
type MarketMaker struct {
	cfg Config
	log *zap.Logger
	reg *registry.Registry
	met *metrics.Metrics

	led *ledger.Ledger
	bk  *book.Book
	rng *rand.Rand

	self        agent.AID
	subscribers map[agent.AID]struct{}

	price      float64
	returns    []float64
	buyFlow    int64
	sellFlow   int64
	tickVolume int64

	// quoteMu guards only the published snapshot fields below; they are
	// written once per tick and read by observers (TUI, feed).
	quoteMu   sync.RWMutex
	lastQuote market.Quote
	bidDepth  int
	askDepth  int
}

// New creates a market maker. The quote is seeded from the configured
// initial price so market orders arriving before the first tick still
// have a price to clear against.
func New(cfg Config, reg *registry.Registry, met *metrics.Metrics, log *zap.Logger) *MarketMaker {
	def := DefaultConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.InitialPrice <= 0 {
		cfg.InitialPrice = def.InitialPrice
	}
	if cfg.BaseSpread <= 0 {
		cfg.BaseSpread = def.BaseSpread
	}
	if cfg.BaseVolatility <= 0 {
		cfg.BaseVolatility = def.BaseVolatility
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = def.VolatilityWindow
	}
	if cfg.QuoteInterval <= 0 {
		cfg.QuoteInterval = def.QuoteInterval
	}
	if cfg.DealerCash <= 0 {
		cfg.DealerCash = def.DealerCash
	}
	if cfg.DealerShares <= 0 {
		cfg.DealerShares = def.DealerShares
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &MarketMaker{
		cfg:         cfg,
		log:         log.Named("maker"),
		reg:         reg,
		met:         met,
		led:         ledger.New(),
		bk:          book.New(cfg.Symbol),
		rng:         rand.New(rand.NewSource(seed)),
		subscribers: make(map[agent.AID]struct{}),
		price:       cfg.InitialPrice,
	}
	m.lastQuote = m.buildQuote(cfg.BaseVolatility, 0, time.Now())
	return m
}

// Ledger exposes the balance sheet for observer snapshots only; no
// caller outside this package may mutate it.
func (m *MarketMaker) Ledger() *ledger.Ledger { return m.led }

// LastQuote returns the most recently published quote.
func (m *MarketMaker) LastQuote() market.Quote {
	m.quoteMu.RLock()
	defer m.quoteMu.RUnlock()
	return m.lastQuote
}

// Depths returns the resting order counts as of the last tick.
func (m *MarketMaker) Depths() (bids, asks int) {
	m.quoteMu.RLock()
	defer m.quoteMu.RUnlock()
	return m.bidDepth, m.askDepth
}

// Behaviours returns the agent behaviours to spawn the maker with.
func (m *MarketMaker) Behaviours() []agent.Behaviour {
	return []agent.Behaviour{
		agent.OneShot{Name: "maker-bootstrap", Fn: m.bootstrap},
		agent.Cyclic{
			Name:  "maker-orders",
			Match: agent.Pattern{Topic: agent.TopicTrading, Performative: agent.Request},
			Fn:    m.handleOrder,
		},
		agent.Cyclic{
			Name:  "maker-registrations",
			Match: agent.Pattern{Topic: agent.TopicPortfolio, Performative: agent.Request},
			Fn:    m.handleRegister,
		},
		agent.Cyclic{
			Name:  "maker-subscriptions",
			Match: agent.Pattern{Topic: agent.TopicMarketDataSub, Performative: agent.Subscribe},
			Fn:    m.handleSubscribe,
		},
		agent.Ticker{Name: "maker-quote", Every: m.cfg.QuoteInterval, Fn: m.tickQuote},
	}
}

func (m *MarketMaker) bootstrap(ctx *agent.Ctx) {
	m.self = ctx.Self()

	// The dealer account is the implicit counter-liquidity every market
	// order clears against, ledger-to-ledger.
	if err := m.led.Register(m.self, decimal.NewFromFloat(m.cfg.DealerCash)); err != nil {
		m.log.Error("registering dealer account", zap.Error(err))
		return
	}
	if err := m.led.AddShares(m.self, m.cfg.Symbol, m.cfg.DealerShares); err != nil {
		m.log.Error("seeding dealer inventory", zap.Error(err))
		return
	}

	m.reg.Register(m.self, registry.CapabilityMarketMaker)
	m.log.Info("market maker online",
		zap.String("symbol", m.cfg.Symbol),
		zap.Float64("initial_price", m.cfg.InitialPrice),
	)
}

func (m *MarketMaker) handleRegister(ctx *agent.Ctx, e agent.Envelope) {
	req, ok := e.Payload.(wire.RegisterRequest)
	if !ok {
		m.met.PayloadsDropped.Inc()
		m.log.Warn("unexpected portfolio payload", zap.String("sender", e.Sender.String()))
		return
	}
	if !m.led.IsRegistered(e.Sender) {
		if err := m.led.Register(e.Sender, req.InitialCash); err != nil {
			m.log.Error("registering trader", zap.String("trader", e.Sender.String()), zap.Error(err))
			m.reply(ctx, e, agent.Refuse, wire.RegisterAck{})
			return
		}
		m.log.Info("trader registered",
			zap.String("trader", e.Sender.String()),
			zap.String("cash", req.InitialCash.StringFixed(2)),
		)
	}
	// Re-registration is acknowledged but never re-funds the account.
	m.reply(ctx, e, agent.Confirm, wire.RegisterAck{})
}

func (m *MarketMaker) handleSubscribe(ctx *agent.Ctx, e agent.Envelope) {
	if _, ok := e.Payload.(wire.MarketDataSubscribe); !ok {
		m.met.PayloadsDropped.Inc()
		return
	}
	m.subscribers[e.Sender] = struct{}{}
	m.reply(ctx, e, agent.Confirm, wire.SubscribeAck{Symbol: m.cfg.Symbol})

	// Late subscribers get the current quote immediately instead of
	// waiting out the rest of the tick interval.
	q := m.LastQuote()
	_ = ctx.Send(agent.Envelope{
		Sender:       m.self,
		Receivers:    []agent.AID{e.Sender},
		Performative: agent.Inform,
		Topic:        agent.TopicMarketData,
		Payload:      wire.QuoteData{Quote: q},
	})
}

func (m *MarketMaker) handleOrder(ctx *agent.Ctx, e agent.Envelope) {
	req, ok := e.Payload.(wire.OrderRequest)
	if !ok {
		m.met.PayloadsDropped.Inc()
		m.refuse(ctx, e, ReasonMalformedOrder)
		return
	}
	if req.Symbol != m.cfg.Symbol {
		m.refuse(ctx, e, ReasonUnknownSymbol)
		return
	}
	if !m.led.IsRegistered(e.Sender) {
		m.refuse(ctx, e, ReasonNotRegistered)
		return
	}

	order := market.Order{
		Owner:       e.Sender,
		Side:        req.Side,
		Symbol:      req.Symbol,
		Quantity:    req.Quantity,
		Price:       req.Price,
		SubmittedAt: e.SentAt,
	}
	if err := order.Validate(); err != nil {
		m.refuse(ctx, e, ReasonMalformedOrder)
		return
	}

	switch order.Side {
	case market.SideBuy:
		m.buyFlow++
	case market.SideSell:
		m.sellFlow++
	}

	if order.Price.AtMarket {
		m.executeMarketOrder(ctx, e, order)
		return
	}

	// Limit orders rest until a tick crosses them; acceptance is silent.
	if err := m.bk.Add(order); err != nil {
		m.refuse(ctx, e, ReasonMalformedOrder)
		return
	}
	m.met.OrdersAccepted.Inc()
}

// executeMarketOrder clears a market order against the dealer account
// at the current quote: buys lift the ask, sells hit the bid.
func (m *MarketMaker) executeMarketOrder(ctx *agent.Ctx, e agent.Envelope, order market.Order) {
	quote := m.LastQuote()

	var price decimal.Decimal
	trade := market.Trade{
		ID:         market.NewTradeID(),
		Symbol:     order.Symbol,
		Quantity:   order.Quantity,
		TakerSide:  order.Side,
		ExecutedAt: e.SentAt,
	}
	if order.Side == market.SideBuy {
		price = quote.Ask
		trade.Buyer, trade.Seller = order.Owner, m.self
	} else {
		price = quote.Bid
		trade.Buyer, trade.Seller = m.self, order.Owner
	}
	trade.Price = price

	commission := m.commission(trade)
	if order.Side == market.SideBuy {
		cash, err := m.led.Cash(order.Owner)
		if err != nil || cash.LessThan(trade.Notional().Add(commission)) {
			m.refuse(ctx, e, ReasonInsufficientCash)
			return
		}
	}

	if err := m.led.ApplyTrade(trade); err != nil {
		m.refuse(ctx, e, reasonFor(err))
		return
	}
	if commission.IsPositive() {
		// Pre-checked for buys; for sells the proceeds just landed.
		if err := m.led.Debit(order.Owner, commission); err != nil {
			m.log.Error("collecting commission", zap.String("trader", order.Owner.String()), zap.Error(err))
		}
	}

	m.tickVolume += trade.Quantity
	m.met.TradesExecuted.Inc()
	m.met.OrdersAccepted.Inc()

	m.reply(ctx, e, agent.Confirm, wire.OrderExecuted{
		Side:     order.Side,
		Quantity: trade.Quantity,
		Symbol:   trade.Symbol,
		Price:    trade.Price,
	})
	m.broadcast(ctx, agent.Inform, wire.NewTradeNotice(trade))
}

func (m *MarketMaker) tickQuote(ctx *agent.Ctx, now time.Time) {
	m.matchBook(ctx, now)

	vol := m.realizedVolatility()
	imbalance := m.flowImbalance()

	prev := m.price
	drift := m.price * vol * imbalance * m.cfg.ImbalanceWeight
	walk := m.price * vol * m.cfg.WalkWeight * m.rng.NormFloat64()
	m.price += drift + walk
	if m.price < 0.01 {
		m.price = 0.01
	}
	if prev > 0 {
		m.pushReturn((m.price - prev) / prev)
	}

	quote := m.buildQuote(vol, m.tickVolume, now)

	m.quoteMu.Lock()
	m.lastQuote = quote
	m.bidDepth = m.bk.BuyDepth()
	m.askDepth = m.bk.SellDepth()
	m.quoteMu.Unlock()

	m.buyFlow, m.sellFlow, m.tickVolume = 0, 0, 0
	mid, _ := quote.Mid.Float64()
	m.met.LastMid.Set(mid)

	m.broadcast(ctx, agent.Inform, wire.QuoteData{Quote: quote})
}

// matchBook crosses resting limit orders and settles each fill through
// the ledger. A side that cannot honor its order at match time is
// cancelled by the book so it cannot wedge the spread.
func (m *MarketMaker) matchBook(ctx *agent.Ctx, now time.Time) {
	trades := m.bk.Match(now, func(t market.Trade) error {
		if err := m.led.ApplyTrade(t); err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientCash):
				return book.ErrBuyerCannotPay
			case errors.Is(err, ledger.ErrInsufficientShares):
				return book.ErrSellerCannotDeliver
			}
			return err
		}
		return nil
	})

	for _, t := range trades {
		m.tickVolume += t.Quantity
		m.met.TradesExecuted.Inc()

		m.notify(ctx, t.Buyer, wire.OrderExecuted{
			Side: market.SideBuy, Quantity: t.Quantity, Symbol: t.Symbol, Price: t.Price,
		})
		m.notify(ctx, t.Seller, wire.OrderExecuted{
			Side: market.SideSell, Quantity: t.Quantity, Symbol: t.Symbol, Price: t.Price,
		})
		m.broadcast(ctx, agent.Inform, wire.NewTradeNotice(t))
	}
}

// realizedVolatility is the standard deviation of recent tick returns,
// falling back to the configured base before enough history exists.
func (m *MarketMaker) realizedVolatility() float64 {
	if len(m.returns) < 2 {
		return m.cfg.BaseVolatility
	}
	var mean float64
	for _, r := range m.returns {
		mean += r
	}
	mean /= float64(len(m.returns))
	var ss float64
	for _, r := range m.returns {
		d := r - mean
		ss += d * d
	}
	vol := math.Sqrt(ss / float64(len(m.returns)-1))
	if vol < m.cfg.BaseVolatility {
		return m.cfg.BaseVolatility
	}
	if vol > 0.5 {
		return 0.5
	}
	return vol
}

func (m *MarketMaker) pushReturn(r float64) {
	m.returns = append(m.returns, r)
	if len(m.returns) > m.cfg.VolatilityWindow {
		m.returns = m.returns[len(m.returns)-m.cfg.VolatilityWindow:]
	}
}

// flowImbalance is (buys-sells)/(buys+sells) over the elapsed tick,
// in [-1, 1], zero when no orders arrived.
func (m *MarketMaker) flowImbalance() float64 {
	total := m.buyFlow + m.sellFlow
	if total == 0 {
		return 0
	}
	return float64(m.buyFlow-m.sellFlow) / float64(total)
}

// buildQuote snaps the continuous price state to cent-denominated
// bid/mid/ask with the spread widened by volatility. Rounding is
// outward so the quoted spread never narrows below the computed one,
// and a degenerate collapse is nudged apart by a cent.
func (m *MarketMaker) buildQuote(vol float64, volume int64, at time.Time) market.Quote {
	spread := m.cfg.BaseSpread * (1 + vol*m.cfg.SpreadVolWeight)
	half := spread / 2

	mid := decimal.NewFromFloat(m.price).Round(2)
	bid := decimal.NewFromFloat(m.price * (1 - half)).RoundFloor(2)
	ask := decimal.NewFromFloat(m.price * (1 + half)).RoundCeil(2)

	cent := decimal.New(1, -2)
	if !bid.LessThan(mid) {
		bid = mid.Sub(cent)
	}
	if !mid.LessThan(ask) {
		ask = mid.Add(cent)
	}

	return market.Quote{
		Symbol:     m.cfg.Symbol,
		Bid:        bid,
		Mid:        mid,
		Ask:        ask,
		Volume:     volume,
		Volatility: vol,
		At:         at,
	}
}

func (m *MarketMaker) commission(t market.Trade) decimal.Decimal {
	if m.cfg.CommissionRate <= 0 {
		return decimal.Zero
	}
	return t.Notional().Mul(decimal.NewFromFloat(m.cfg.CommissionRate)).Round(2)
}

func (m *MarketMaker) reply(ctx *agent.Ctx, e agent.Envelope, perf agent.Performative, p wire.Payload) {
	_ = ctx.Send(e.Reply(m.self, perf, p))
}

func (m *MarketMaker) refuse(ctx *agent.Ctx, e agent.Envelope, reason string) {
	m.met.OrdersRejected.Inc()
	m.log.Debug("order refused",
		zap.String("trader", e.Sender.String()),
		zap.String("reason", reason),
	)
	m.reply(ctx, e, agent.Refuse, wire.OrderRejected{Reason: reason})
}

func (m *MarketMaker) notify(ctx *agent.Ctx, to agent.AID, p wire.Payload) {
	if to == m.self {
		return
	}
	_ = ctx.Send(agent.Envelope{
		Sender:       m.self,
		Receivers:    []agent.AID{to},
		Performative: agent.Confirm,
		Topic:        p.Topic(),
		Payload:      p,
	})
}

// broadcast fans a payload out to every market-data subscriber.
func (m *MarketMaker) broadcast(ctx *agent.Ctx, perf agent.Performative, p wire.Payload) {
	if len(m.subscribers) == 0 {
		return
	}
	receivers := make([]agent.AID, 0, len(m.subscribers))
	for aid := range m.subscribers {
		receivers = append(receivers, aid)
	}
	_ = ctx.Send(agent.Envelope{
		Sender:       m.self,
		Receivers:    receivers,
		Performative: perf,
		Topic:        p.Topic(),
		Payload:      p,
	})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCash):
		return ReasonInsufficientCash
	case errors.Is(err, ledger.ErrInsufficientShares):
		return ReasonInsufficientShares
	case errors.Is(err, ledger.ErrUnknownAccount):
		return ReasonNotRegistered
	}
	return err.Error()
}
