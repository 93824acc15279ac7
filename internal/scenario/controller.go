package scenario

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/metrics"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

// Config parameterizes a scenario controller.
type Config struct {
	// Symbol is interpolated into headlines.
	Symbol string

	// SimulatedDuration is the total session length in simulated time.
	// The session clock maps it to the real session length.
	SimulatedDuration time.Duration

	// Tick is the simulated interval between progress recomputations.
	Tick time.Duration

	// NewsPerSecond caps the real-time flash rate regardless of phase
	// frequency, so subscribers are never saturated.
	NewsPerSecond float64
	NewsBurst     int

	Seed int64
}

// DefaultConfig returns a one-hour simulated session with news capped
// at two flashes per real second.
func DefaultConfig() Config {
	return Config{
		Symbol:            "AAPL",
		SimulatedDuration: time.Hour,
		Tick:              10 * time.Second,
		NewsPerSecond:     2,
		NewsBurst:         4,
	}
}

// Controller is the phase state machine agent. It owns the session's
// narrative: phase transitions and synthetic news, both broadcast on
// the NEWS topic to every registered trader and observer.
type Controller struct {
	cfg Config
	log *zap.Logger
	reg *registry.Registry
	met *metrics.Metrics

	rng     *rand.Rand
	limiter *rate.Limiter

	self agent.AID

	mu        sync.RWMutex
	start     time.Time
	totalReal time.Duration
	phase     Phase
}

// New creates a scenario controller.
func New(cfg Config, reg *registry.Registry, met *metrics.Metrics, log *zap.Logger) *Controller {
	def := DefaultConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.SimulatedDuration <= 0 {
		cfg.SimulatedDuration = def.SimulatedDuration
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.NewsPerSecond <= 0 {
		cfg.NewsPerSecond = def.NewsPerSecond
	}
	if cfg.NewsBurst <= 0 {
		cfg.NewsBurst = def.NewsBurst
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		cfg:     cfg,
		log:     log.Named("scenario"),
		reg:     reg,
		met:     met,
		rng:     rand.New(rand.NewSource(seed)),
		limiter: rate.NewLimiter(rate.Limit(cfg.NewsPerSecond), cfg.NewsBurst),
		phase:   PhaseCalm,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Progress returns the session progress ratio at the given time,
// derived from the start time and the session clock.
func (c *Controller) Progress(now time.Time) float64 {
	c.mu.RLock()
	start, total := c.start, c.totalReal
	c.mu.RUnlock()
	if total <= 0 {
		return 0
	}
	p := float64(now.Sub(start)) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Behaviours returns the agent behaviours to spawn the controller with.
func (c *Controller) Behaviours() []agent.Behaviour {
	return []agent.Behaviour{
		agent.OneShot{Name: "scenario-bootstrap", Fn: c.bootstrap},
		agent.Ticker{Name: "scenario-tick", Every: c.cfg.Tick, Fn: c.tick},
	}
}

func (c *Controller) bootstrap(ctx *agent.Ctx) {
	c.self = ctx.Self()
	c.mu.Lock()
	c.start = time.Now()
	c.totalReal = ctx.Clock().Scale(c.cfg.SimulatedDuration)
	c.mu.Unlock()
	c.reg.Register(c.self, registry.CapabilityScenario)
	c.log.Info("scenario controller online",
		zap.Duration("simulated_duration", c.cfg.SimulatedDuration),
		zap.Duration("real_duration", c.totalReal),
	)
}

func (c *Controller) tick(ctx *agent.Ctx, now time.Time) {
	progress := c.Progress(now)
	c.met.SessionProgress.Set(progress)

	if c.advanceTo(PhaseAt(progress)) {
		phase := c.Phase()
		c.log.Info("phase transition",
			zap.Stringer("phase", phase),
			zap.Float64("progress", progress),
		)
		if tpl, ok := phaseAnnouncements[phase]; ok {
			c.publish(ctx, tpl.flash(c.cfg.Symbol))
		}
		return
	}

	phase := c.Phase()
	if c.rng.Float64() >= newsFrequency[phase] {
		return
	}
	if !c.limiter.Allow() {
		return
	}
	pool := phaseNews[phase]
	c.publish(ctx, pool[c.rng.Intn(len(pool))].flash(c.cfg.Symbol))
}

// advanceTo moves at most one phase forward per tick and never moves
// backward. It reports whether a transition happened.
func (c *Controller) advanceTo(target Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target <= c.phase {
		return false
	}
	c.phase++
	return true
}

// publish fans a flash out to every registered trader and observer.
func (c *Controller) publish(ctx *agent.Ctx, flash wire.NewsFlash) {
	receivers := c.reg.Lookup(registry.CapabilityTrader)
	receivers = append(receivers, c.reg.Lookup(registry.CapabilityObserver)...)
	if len(receivers) == 0 {
		return
	}
	c.met.NewsPublished.Inc()
	_ = ctx.Send(agent.Envelope{
		Sender:       c.self,
		Receivers:    receivers,
		Performative: agent.Inform,
		Topic:        agent.TopicNews,
		Payload:      flash,
	})
}
