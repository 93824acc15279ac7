package agent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := NewRuntime(NewClock(1), zap.NewNop())
	t.Cleanup(func() { rt.Close(0) })
	return rt
}

func TestClockScale(t *testing.T) {
	c := NewClock(60)
	assert.Equal(t, time.Second, c.Scale(time.Minute))
	assert.Equal(t, 500*time.Millisecond, c.Scale(30*time.Second))

	// Floor keeps extreme factors from producing busy loops.
	fast := NewClock(1e9)
	assert.Equal(t, time.Millisecond, fast.Scale(time.Second))

	// Non-positive factors fall back to real time.
	assert.Equal(t, time.Minute, NewClock(0).Scale(time.Minute))
}

func TestSendDeliversInOrderPerSender(t *testing.T) {
	rt := newTestRuntime(t)

	var mu sync.Mutex
	var got []any
	done := make(chan struct{})

	receiver := rt.Spawn("receiver", Cyclic{
		Name:  "collect",
		Match: Pattern{Topic: TopicNews},
		Fn: func(ctx *Ctx, e Envelope) {
			mu.Lock()
			got = append(got, e.Payload)
			if len(got) == 20 {
				close(done)
			}
			mu.Unlock()
		},
	})
	sender := rt.Spawn("sender")

	for i := 0; i < 20; i++ {
		err := rt.Send(env(sender.Self(), receiver.Self(), Inform, TopicNews, i))
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, p := range got {
		assert.Equal(t, i, p, "single sender to single receiver must stay in send order")
	}
}

func TestSendToUnknownReceiverIsDroppedNotFatal(t *testing.T) {
	rt := newTestRuntime(t)
	sender := rt.Spawn("sender")

	ghost := NewAID("ghost")
	err := rt.Send(env(sender.Self(), ghost, Inform, TopicNews, nil))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rt.Dropped() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSendNeverBlocksWithoutConsumer(t *testing.T) {
	rt := newTestRuntime(t)
	sender := rt.Spawn("sender")
	// No cyclic behaviour: envelopes just accumulate in the mailbox.
	receiver := rt.Spawn("idle")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			_ = rt.Send(env(sender.Self(), receiver.Self(), Inform, TopicNews, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked on an unbounded mailbox")
	}
	assert.Eventually(t, func() bool { return receiver.Mailbox().Len() == 5000 }, time.Second, 5*time.Millisecond)
}

func TestBehavioursOfOneAgentNeverOverlap(t *testing.T) {
	rt := newTestRuntime(t)

	var active atomic.Int32
	var overlaps atomic.Int32
	body := func() {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}

	a := rt.Spawn("busy",
		Ticker{Name: "tick", Every: 2 * time.Millisecond, Fn: func(*Ctx, time.Time) { body() }},
		Cyclic{Name: "handle", Match: Any, Fn: func(*Ctx, Envelope) { body() }},
	)
	sender := rt.Spawn("sender")

	for i := 0; i < 50; i++ {
		_ = rt.Send(env(sender.Self(), a.Self(), Inform, TopicNews, i))
	}
	time.Sleep(200 * time.Millisecond)

	assert.Zero(t, overlaps.Load(), "behaviours of the same agent ran concurrently")
}

func TestBehaviourPanicDoesNotKillAgent(t *testing.T) {
	rt := newTestRuntime(t)

	var handled atomic.Int32
	a := rt.Spawn("fragile", Cyclic{
		Name:  "handle",
		Match: Any,
		Fn: func(ctx *Ctx, e Envelope) {
			if e.Payload == "bad" {
				panic("malformed payload")
			}
			handled.Add(1)
		},
	})
	sender := rt.Spawn("sender")

	_ = rt.Send(env(sender.Self(), a.Self(), Inform, TopicNews, "bad"))
	_ = rt.Send(env(sender.Self(), a.Self(), Inform, TopicNews, "good"))

	assert.Eventually(t, func() bool { return handled.Load() == 1 },
		time.Second, 5*time.Millisecond,
		"agent must survive a panicking behaviour and keep consuming")
}

func TestOneShotRunsOnce(t *testing.T) {
	rt := newTestRuntime(t)

	var runs atomic.Int32
	rt.Spawn("setup", OneShot{Name: "boot", Fn: func(*Ctx) { runs.Add(1) }})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTickerStopsOnQuiesce(t *testing.T) {
	rt := NewRuntime(NewClock(1), zap.NewNop())

	var ticks atomic.Int32
	rt.Spawn("ticker", Ticker{
		Name:  "tick",
		Every: 5 * time.Millisecond,
		Fn:    func(*Ctx, time.Time) { ticks.Add(1) },
	})

	time.Sleep(60 * time.Millisecond)
	require.Greater(t, ticks.Load(), int32(2))

	rt.Close(20 * time.Millisecond)
	after := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "tickers must not fire after shutdown")
}

func TestReceiveInsideBehaviour(t *testing.T) {
	rt := newTestRuntime(t)

	got := make(chan Envelope, 1)
	responder := rt.Spawn("responder", Cyclic{
		Name:  "serve",
		Match: Pattern{Topic: TopicPortfolio, Performative: Request},
		Fn: func(ctx *Ctx, e Envelope) {
			_ = ctx.Send(e.Reply(ctx.Self(), Confirm, "done"))
		},
	})

	rt.Spawn("requester", OneShot{
		Name: "ask",
		Fn: func(ctx *Ctx) {
			_ = ctx.Send(Envelope{
				Sender:       ctx.Self(),
				Receivers:    []AID{responder.Self()},
				Performative: Request,
				Topic:        TopicPortfolio,
			})
			if e, ok := ctx.Receive(Pattern{Performative: Confirm}, time.Second); ok {
				got <- e
			}
		},
	})

	select {
	case e := <-got:
		assert.Equal(t, "done", e.Payload)
		assert.Equal(t, responder.Self(), e.Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("request/reply conversation did not complete")
	}
}
