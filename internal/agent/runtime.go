package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Runtime spawns agents and routes envelopes between their mailboxes.
// Agents share nothing but the runtime itself; every exchange goes
// through Send.
type Runtime struct {
	log   *zap.Logger
	clock Clock

	mu     sync.RWMutex
	agents map[AID]*Agent

	dropped   atomic.Int64
	delivered atomic.Int64

	lifecycle conc.WaitGroup
	closeOnce sync.Once
}

// NewRuntime creates a runtime using the given session clock.
func NewRuntime(clock Clock, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		log:    log,
		clock:  clock,
		agents: make(map[AID]*Agent),
	}
}

// Clock returns the immutable session clock.
func (r *Runtime) Clock() Clock { return r.clock }

// Spawn creates an agent with a fresh identity, registers its mailbox
// and starts its scheduler goroutine. Ticker intervals are given in
// simulated time and scaled by the session clock.
func (r *Runtime) Spawn(name string, behaviours ...Behaviour) *Agent {
	a := &Agent{
		aid:     NewAID(name),
		rt:      r,
		mailbox: newMailbox(),
		quiesce: make(chan struct{}),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	a.log = r.log.With(zap.String("agent", a.aid.String()))

	for _, b := range behaviours {
		switch b := b.(type) {
		case OneShot:
			a.oneShots = append(a.oneShots, b)
		case Ticker:
			a.tickers = append(a.tickers, &tickerState{
				b:     b,
				every: r.clock.Scale(b.Every),
			})
		case Cyclic:
			a.cyclics = append(a.cyclics, b)
		}
	}

	r.mu.Lock()
	r.agents[a.aid] = a
	r.mu.Unlock()

	r.lifecycle.Go(a.run)
	return a
}

// Send validates the envelope and enqueues it into each receiver's
// mailbox. It never blocks: unknown or closed receivers are counted and
// skipped. Envelopes from one sender to one receiver arrive in send
// order; nothing is guaranteed across senders.
func (r *Runtime) Send(e Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, to := range e.Receivers {
		a, ok := r.agents[to]
		if !ok || !a.mailbox.Put(e) {
			r.dropped.Add(1)
			r.log.Debug("dropping envelope for unknown or closed receiver",
				zap.Stringer("receiver", to),
				zap.String("topic", string(e.Topic)),
			)
			continue
		}
		r.delivered.Add(1)
	}
	return nil
}

// Delivered returns the number of envelopes placed into mailboxes.
func (r *Runtime) Delivered() int64 { return r.delivered.Load() }

// Dropped returns the number of envelopes that found no mailbox.
func (r *Runtime) Dropped() int64 { return r.dropped.Load() }

// Close ends the session: all periodic behaviours stop immediately,
// agents get the grace period to flush final broadcasts, then mailboxes
// close and the runtime waits for every scheduler goroutine to exit.
func (r *Runtime) Close(grace time.Duration) {
	r.closeOnce.Do(func() {
		r.mu.RLock()
		agents := make([]*Agent, 0, len(r.agents))
		for _, a := range r.agents {
			agents = append(agents, a)
		}
		r.mu.RUnlock()

		for _, a := range agents {
			close(a.quiesce)
		}
		if grace > 0 {
			time.Sleep(grace)
		}
		for _, a := range agents {
			close(a.closed)
			a.mailbox.close()
		}
		r.lifecycle.Wait()
	})
}
