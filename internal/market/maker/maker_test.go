package maker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/metrics"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
	"go.uber.org/zap"
)

type fixture struct {
	rt    *agent.Runtime
	reg   *registry.Registry
	maker *MarketMaker
	aid   agent.AID
}

// newFixture spawns a maker and waits for its bootstrap to register the
// market-maker capability.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	rt := agent.NewRuntime(agent.NewClock(1), zap.NewNop())
	reg := registry.New()
	m := New(cfg, reg, metrics.New(), zap.NewNop())
	a := rt.Spawn("maker", m.Behaviours()...)
	t.Cleanup(func() { rt.Close(0) })

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := reg.First(registry.CapabilityMarketMaker); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("maker never registered its capability")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return &fixture{rt: rt, reg: reg, maker: m, aid: a.Self()}
}

func (f *fixture) spawnProbe(t *testing.T, name string) *agent.Agent {
	t.Helper()
	return f.rt.Spawn(name)
}

// recv polls a probe mailbox until an envelope matches or the test
// deadline passes. The probe's own scheduler may steal the wakeup, so a
// single long Receive is not reliable from the test goroutine.
func recv(t *testing.T, probe *agent.Agent, p agent.Pattern) agent.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := probe.Mailbox().Receive(p, 25*time.Millisecond); ok {
			return e
		}
	}
	t.Fatalf("no envelope matching topic=%q perf=%d", p.Topic, p.Performative)
	return agent.Envelope{}
}

func (f *fixture) register(t *testing.T, probe *agent.Agent, cash float64) {
	t.Helper()
	err := f.rt.Send(agent.Envelope{
		Sender:       probe.Self(),
		Receivers:    []agent.AID{f.aid},
		Performative: agent.Request,
		Topic:        agent.TopicPortfolio,
		Payload:      wire.RegisterRequest{InitialCash: decimal.NewFromFloat(cash)},
	})
	require.NoError(t, err)

	e := recv(t, probe, agent.Pattern{Topic: agent.TopicPortfolio})
	require.Equal(t, agent.Confirm, e.Performative)
	require.IsType(t, wire.RegisterAck{}, e.Payload)
}

func (f *fixture) sendOrder(t *testing.T, probe *agent.Agent, side market.Side, qty int64, price market.PriceSpec) {
	t.Helper()
	err := f.rt.Send(agent.Envelope{
		Sender:       probe.Self(),
		Receivers:    []agent.AID{f.aid},
		Performative: agent.Request,
		Topic:        agent.TopicTrading,
		Payload: wire.OrderRequest{
			Side:     side,
			Symbol:   f.maker.cfg.Symbol,
			Quantity: qty,
			Price:    price,
		},
	})
	require.NoError(t, err)
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.QuoteInterval = time.Hour // keep the quote static during the test
	cfg.Seed = 1
	return cfg
}

func TestMarketBuyDebitsCashAndCreditsShares(t *testing.T) {
	f := newFixture(t, quietConfig())
	probe := f.spawnProbe(t, "trader")

	f.register(t, probe, 1000)
	ask := f.maker.LastQuote().Ask

	f.sendOrder(t, probe, market.SideBuy, 5, market.MarketPrice())

	e := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Confirm, e.Performative)
	exec, ok := e.Payload.(wire.OrderExecuted)
	require.True(t, ok, "payload %T", e.Payload)
	assert.Equal(t, market.SideBuy, exec.Side)
	assert.Equal(t, int64(5), exec.Quantity)
	assert.True(t, exec.Price.Equal(ask), "executed at %s, quoted ask %s", exec.Price, ask)

	led := f.maker.Ledger()
	cash, err := led.Cash(probe.Self())
	require.NoError(t, err)
	want := decimal.NewFromInt(1000).Sub(ask.Mul(decimal.NewFromInt(5)))
	assert.True(t, cash.Equal(want), "cash %s, want %s", cash, want)

	shares, err := led.Shares(probe.Self(), f.maker.cfg.Symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(5), shares)
}

func TestMarketBuyRefusedWhenCashShort(t *testing.T) {
	f := newFixture(t, quietConfig())
	probe := f.spawnProbe(t, "pauper")

	f.register(t, probe, 50)
	f.sendOrder(t, probe, market.SideBuy, 5, market.MarketPrice())

	e := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Refuse, e.Performative)
	rej, ok := e.Payload.(wire.OrderRejected)
	require.True(t, ok, "payload %T", e.Payload)
	assert.Equal(t, ReasonInsufficientCash, rej.Reason)

	cash, err := f.maker.Ledger().Cash(probe.Self())
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(50)), "cash %s", cash)
}

func TestUnregisteredOrderRefused(t *testing.T) {
	f := newFixture(t, quietConfig())
	probe := f.spawnProbe(t, "stranger")

	f.sendOrder(t, probe, market.SideBuy, 1, market.MarketPrice())

	e := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Refuse, e.Performative)
	rej := e.Payload.(wire.OrderRejected)
	assert.Equal(t, ReasonNotRegistered, rej.Reason)
}

func TestCannotSellSharesTwice(t *testing.T) {
	f := newFixture(t, quietConfig())
	probe := f.spawnProbe(t, "doubleseller")

	f.register(t, probe, 5000)
	f.sendOrder(t, probe, market.SideBuy, 10, market.MarketPrice())
	e := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Confirm, e.Performative)

	// Both sells name the same 10 shares. The maker processes orders
	// one at a time, so the second must find the inventory gone.
	f.sendOrder(t, probe, market.SideSell, 10, market.MarketPrice())
	f.sendOrder(t, probe, market.SideSell, 10, market.MarketPrice())

	first := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})
	second := recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})

	require.Equal(t, agent.Confirm, first.Performative)
	require.Equal(t, agent.Refuse, second.Performative)
	rej := second.Payload.(wire.OrderRejected)
	assert.Equal(t, ReasonInsufficientShares, rej.Reason)

	shares, err := f.maker.Ledger().Shares(probe.Self(), f.maker.cfg.Symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(0), shares)
}

func TestDuplicateRegistrationDoesNotRefund(t *testing.T) {
	f := newFixture(t, quietConfig())
	probe := f.spawnProbe(t, "trader")

	f.register(t, probe, 1000)
	f.sendOrder(t, probe, market.SideBuy, 1, market.MarketPrice())
	recv(t, probe, agent.Pattern{Topic: agent.TopicTrading})

	spent, err := f.maker.Ledger().Cash(probe.Self())
	require.NoError(t, err)

	f.register(t, probe, 1000) // acked but ignored
	cash, err := f.maker.Ledger().Cash(probe.Self())
	require.NoError(t, err)
	assert.True(t, cash.Equal(spent), "cash %s, want %s", cash, spent)
}

func TestSubscribeDeliversQuotes(t *testing.T) {
	cfg := quietConfig()
	cfg.QuoteInterval = 20 * time.Millisecond
	f := newFixture(t, cfg)
	probe := f.spawnProbe(t, "watcher")

	err := f.rt.Send(agent.Envelope{
		Sender:       probe.Self(),
		Receivers:    []agent.AID{f.aid},
		Performative: agent.Subscribe,
		Topic:        agent.TopicMarketDataSub,
		Payload:      wire.MarketDataSubscribe{Symbol: cfg.Symbol},
	})
	require.NoError(t, err)

	ack := recv(t, probe, agent.Pattern{Topic: agent.TopicMarketDataSub})
	require.Equal(t, agent.Confirm, ack.Performative)
	assert.Equal(t, wire.SubscribeAck{Symbol: cfg.Symbol}, ack.Payload)

	for i := 0; i < 3; i++ {
		e := recv(t, probe, agent.Pattern{Topic: agent.TopicMarketData})
		qd, ok := e.Payload.(wire.QuoteData)
		require.True(t, ok, "payload %T", e.Payload)
		q := qd.Quote
		assert.True(t, q.Bid.LessThan(q.Mid), "bid %s >= mid %s", q.Bid, q.Mid)
		assert.True(t, q.Mid.LessThan(q.Ask), "mid %s >= ask %s", q.Mid, q.Ask)
	}
}

func TestRestingLimitOrdersCrossAtMeanPrice(t *testing.T) {
	cfg := quietConfig()
	cfg.QuoteInterval = 20 * time.Millisecond
	f := newFixture(t, cfg)

	seller := f.spawnProbe(t, "seller")
	buyer := f.spawnProbe(t, "buyer")
	f.register(t, seller, 5000)
	f.register(t, buyer, 5000)

	f.sendOrder(t, seller, market.SideBuy, 10, market.MarketPrice())
	e := recv(t, seller, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Confirm, e.Performative)

	f.sendOrder(t, seller, market.SideSell, 6, market.LimitPrice(decimal.NewFromInt(99)))
	f.sendOrder(t, buyer, market.SideBuy, 10, market.LimitPrice(decimal.NewFromInt(101)))

	se := recv(t, seller, agent.Pattern{Topic: agent.TopicTrading})
	be := recv(t, buyer, agent.Pattern{Topic: agent.TopicTrading})
	require.Equal(t, agent.Confirm, se.Performative)
	require.Equal(t, agent.Confirm, be.Performative)

	sx := se.Payload.(wire.OrderExecuted)
	bx := be.Payload.(wire.OrderExecuted)
	mean := decimal.NewFromInt(100)
	assert.True(t, sx.Price.Equal(mean), "seller filled at %s", sx.Price)
	assert.True(t, bx.Price.Equal(mean), "buyer filled at %s", bx.Price)
	assert.Equal(t, int64(6), sx.Quantity)
	assert.Equal(t, int64(6), bx.Quantity)

	shares, err := f.maker.Ledger().Shares(buyer.Self(), cfg.Symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(6), shares)

	// The unfilled remainder of the buy keeps resting.
	require.Eventually(t, func() bool {
		bids, _ := f.maker.Depths()
		return bids == 1
	}, 2*time.Second, 20*time.Millisecond)
}
