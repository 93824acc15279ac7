package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/metrics"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

func TestPhaseAtBoundaries(t *testing.T) {
	cases := []struct {
		progress float64
		want     Phase
	}{
		{0.0, PhaseCalm},
		{0.165, PhaseCalm},
		{0.166, PhaseEmergingTrend},
		{0.3, PhaseEmergingTrend},
		{0.333, PhaseBubble},
		{0.5, PhaseBubble},
		{0.583, PhaseCrash},
		{0.7, PhaseCrash},
		{0.75, PhaseStabilization},
		{1.0, PhaseStabilization},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PhaseAt(tc.progress), "progress %v", tc.progress)
	}
}

// A 60-minute simulated session at factor 60 runs for 60 real seconds,
// so the boundary ratios land at 9.96s, 19.98s, 34.98s and 45s.
func TestAcceleratedPhaseSchedule(t *testing.T) {
	clock := agent.NewClock(60)
	totalReal := clock.Scale(60 * time.Minute)
	require.Equal(t, 60*time.Second, totalReal)

	c := New(Config{SimulatedDuration: 60 * time.Minute}, registry.New(), metrics.New(), zap.NewNop())
	c.start = time.Unix(0, 0)
	c.totalReal = totalReal

	at := func(d time.Duration) Phase {
		return PhaseAt(c.Progress(c.start.Add(d)))
	}
	assert.Equal(t, PhaseCalm, at(9950*time.Millisecond))
	assert.Equal(t, PhaseEmergingTrend, at(9960*time.Millisecond))
	assert.Equal(t, PhaseEmergingTrend, at(19970*time.Millisecond))
	assert.Equal(t, PhaseBubble, at(19980*time.Millisecond))
	assert.Equal(t, PhaseBubble, at(34970*time.Millisecond))
	assert.Equal(t, PhaseCrash, at(34980*time.Millisecond))
	assert.Equal(t, PhaseCrash, at(44990*time.Millisecond))
	assert.Equal(t, PhaseStabilization, at(45*time.Second))
	assert.Equal(t, PhaseStabilization, at(2*time.Minute)) // clamped past the end
}

func TestAdvanceNeverRegresses(t *testing.T) {
	c := New(Config{}, registry.New(), metrics.New(), zap.NewNop())

	require.True(t, c.advanceTo(PhaseEmergingTrend))
	assert.Equal(t, PhaseEmergingTrend, c.Phase())

	// A stale lower target must not move the phase back.
	assert.False(t, c.advanceTo(PhaseCalm))
	assert.Equal(t, PhaseEmergingTrend, c.Phase())

	// A jump of several phases is taken one step per tick.
	require.True(t, c.advanceTo(PhaseStabilization))
	assert.Equal(t, PhaseBubble, c.Phase())
	require.True(t, c.advanceTo(PhaseStabilization))
	assert.Equal(t, PhaseCrash, c.Phase())
	require.True(t, c.advanceTo(PhaseStabilization))
	assert.Equal(t, PhaseStabilization, c.Phase())
	assert.False(t, c.advanceTo(PhaseStabilization))
}

func TestEveryPhaseHasTemplates(t *testing.T) {
	for p := PhaseCalm; p <= PhaseStabilization; p++ {
		assert.NotEmpty(t, phaseNews[p], "phase %s has no news pool", p)
		assert.Greater(t, newsFrequency[p], 0.0, "phase %s has no news frequency", p)
		if p != PhaseCalm {
			_, ok := phaseAnnouncements[p]
			assert.True(t, ok, "phase %s has no announcement", p)
		}
	}
}

// Runs a short real session end to end and checks that a registered
// trader hears phase announcements in forward order.
func TestControllerBroadcastsPhaseAnnouncements(t *testing.T) {
	rt := agent.NewRuntime(agent.NewClock(1), zap.NewNop())
	defer rt.Close(0)
	reg := registry.New()

	probe := rt.Spawn("listener")
	reg.Register(probe.Self(), registry.CapabilityTrader)

	cfg := Config{
		Symbol:            "AAPL",
		SimulatedDuration: 600 * time.Millisecond,
		Tick:              20 * time.Millisecond,
		NewsPerSecond:     1000,
		NewsBurst:         1000,
		Seed:              7,
	}
	c := New(cfg, reg, metrics.New(), zap.NewNop())
	rt.Spawn("scenario", c.Behaviours()...)

	deadline := time.Now().Add(3 * time.Second)
	for c.Phase() != PhaseStabilization {
		if time.Now().After(deadline) {
			t.Fatalf("stuck in phase %s", c.Phase())
		}
		time.Sleep(10 * time.Millisecond)
	}

	var last Phase
	seen := 0
	for {
		e, ok := probe.Mailbox().Receive(agent.Pattern{Topic: agent.TopicNews}, 50*time.Millisecond)
		if !ok {
			break
		}
		flash, isFlash := e.Payload.(wire.NewsFlash)
		require.True(t, isFlash, "payload %T", e.Payload)
		require.NotEmpty(t, flash.Headline)

		for p := last + 1; p <= PhaseStabilization; p++ {
			if tpl, ok := phaseAnnouncements[p]; ok && tpl.flash(cfg.Symbol).Headline == flash.Headline {
				require.Equal(t, last+1, p, "announcement for %s arrived out of order", p)
				last = p
				seen++
			}
		}
	}
	assert.Equal(t, 4, seen, "expected one announcement per transition")
}
