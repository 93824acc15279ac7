package agent

import (
	"time"

	"go.uber.org/zap"
)

// Behaviour is a scheduled unit of logic run by an agent. The three
// concrete kinds below are plain structs holding closures; an agent runs
// all of its behaviours cooperatively on a single goroutine, so no two
// behaviours of the same agent ever execute concurrently.
type Behaviour interface {
	Label() string
}

// OneShot runs once when the agent starts, then terminates.
type OneShot struct {
	Name string
	Fn   func(ctx *Ctx)
}

func (b OneShot) Label() string { return b.Name }

// Ticker fires on a fixed virtual-time interval. The runtime clock scales
// Every into real time, so one configuration works at any acceleration
// factor.
type Ticker struct {
	Name  string
	Every time.Duration // simulated interval
	Fn    func(ctx *Ctx, now time.Time)
}

func (b Ticker) Label() string { return b.Name }

// Cyclic re-arms itself after each invocation: it is called once per
// mailbox envelope matching Match and suspends when none is pending,
// resumed by the runtime without busy-waiting.
type Cyclic struct {
	Name  string
	Match Pattern
	Fn    func(ctx *Ctx, e Envelope)
}

func (b Cyclic) Label() string { return b.Name }

// Ctx gives a behaviour access to its agent's facilities. It is only
// valid for the duration of the invocation it was passed to.
type Ctx struct {
	agent *Agent
}

// Self returns the identity of the agent running the behaviour.
func (c *Ctx) Self() AID { return c.agent.aid }

// Send routes an envelope through the runtime. It never blocks.
func (c *Ctx) Send(e Envelope) error { return c.agent.rt.Send(e) }

// Receive waits up to timeout for an envelope matching the pattern.
// Ticker and one-shot behaviours use it for request/reply conversations;
// cyclic behaviours normally rely on their own Match instead.
func (c *Ctx) Receive(p Pattern, timeout time.Duration) (Envelope, bool) {
	return c.agent.mailbox.Receive(p, c.agent.rt.clock.Scale(timeout))
}

// Clock returns the session clock.
func (c *Ctx) Clock() Clock { return c.agent.rt.clock }

// Logger returns the agent-scoped logger.
func (c *Ctx) Logger() *zap.Logger { return c.agent.log }
