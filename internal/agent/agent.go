package agent

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Agent is an independently scheduled unit of behaviour with a private
// mailbox. All of its behaviours run on one goroutine: one-shots first,
// then tickers and cyclics interleaved by the scheduler loop.
type Agent struct {
	aid     AID
	rt      *Runtime
	mailbox *Mailbox
	log     *zap.Logger

	oneShots []OneShot
	tickers  []*tickerState
	cyclics  []Cyclic

	quiesce     chan struct{} // stops tickers; cyclic drain continues
	quiesceSeen atomic.Bool
	closed      chan struct{}
	done        chan struct{}
}

type tickerState struct {
	b     Ticker
	every time.Duration // real interval after clock scaling
	next  time.Time
}

// Self returns the agent's identity.
func (a *Agent) Self() AID { return a.aid }

// Mailbox exposes the agent's inbound queue for observability.
func (a *Agent) Mailbox() *Mailbox { return a.mailbox }

// Done is closed when the agent's scheduler goroutine has exited.
func (a *Agent) Done() <-chan struct{} { return a.done }

func (a *Agent) run() {
	defer close(a.done)

	ctx := &Ctx{agent: a}

	for _, b := range a.oneShots {
		if a.closing() {
			return
		}
		a.invoke(b.Name, func() { b.Fn(ctx) })
	}

	now := time.Now()
	for _, t := range a.tickers {
		t.next = now.Add(t.every)
	}

	for {
		if a.closing() {
			return
		}

		next := a.runDueTickers(ctx)
		a.drainCyclics(ctx)
		a.wait(next)
	}
}

// runDueTickers fires every ticker whose deadline passed and returns the
// earliest upcoming deadline, or the zero time when tickers are quiesced.
func (a *Agent) runDueTickers(ctx *Ctx) time.Time {
	select {
	case <-a.quiesce:
		a.quiesceSeen.Store(true)
		return time.Time{}
	default:
	}

	var next time.Time
	now := time.Now()
	for _, t := range a.tickers {
		if !now.Before(t.next) {
			tb := t.b
			a.invoke(tb.Name, func() { tb.Fn(ctx, now) })
			t.next = now.Add(t.every)
		}
		if next.IsZero() || t.next.Before(next) {
			next = t.next
		}
	}
	return next
}

// drainCyclics keeps handing matching envelopes to cyclic behaviours
// until none is pending. A behaviour that panics loses only the envelope
// it was handling.
func (a *Agent) drainCyclics(ctx *Ctx) {
	for {
		progressed := false
		for _, b := range a.cyclics {
			if a.closing() {
				return
			}
			e, ok := a.mailbox.take(b.Match)
			if !ok {
				continue
			}
			cb := b
			a.invoke(cb.Name, func() { cb.Fn(ctx, e) })
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// wait suspends the agent until mail arrives, the next ticker is due, or
// the agent is closed.
func (a *Agent) wait(next time.Time) {
	var timer *time.Timer
	var due <-chan time.Time
	if !next.IsZero() {
		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		due = timer.C
	}

	// After quiesce has been observed once it stops waking the loop;
	// only mail and shutdown do from then on.
	var quiesced <-chan struct{}
	if !a.quiesceSeen.Load() {
		quiesced = a.quiesce
	}

	select {
	case <-a.closed:
	case <-a.mailbox.notify:
	case <-due:
	case <-quiesced:
		a.quiesceSeen.Store(true)
	}
	if timer != nil {
		timer.Stop()
	}
}

// invoke runs a behaviour body, containing panics to the invocation: the
// failure is logged and the agent lives on.
func (a *Agent) invoke(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("behaviour panicked",
				zap.String("behaviour", label),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}

func (a *Agent) closing() bool {
	select {
	case <-a.closed:
		return true
	default:
		return false
	}
}
