package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pchave/agentmarket/internal/agent"
)

func TestRegisterLookupDeregister(t *testing.T) {
	r := New()
	mm := agent.NewAID("maker")
	tr := agent.NewAID("trader-1")

	assert.Empty(t, r.Lookup(CapabilityMarketMaker), "lookup miss is empty, not an error")

	r.Register(mm, CapabilityMarketMaker)
	r.Register(tr, CapabilityTrader)
	r.Register(mm, CapabilityMarketMaker) // duplicate is a no-op

	got := r.Lookup(CapabilityMarketMaker)
	require.Len(t, got, 1)
	assert.Equal(t, mm, got[0])

	first, ok := r.First(CapabilityMarketMaker)
	require.True(t, ok)
	assert.Equal(t, mm, first)

	r.Deregister(mm, CapabilityMarketMaker)
	assert.Empty(t, r.Lookup(CapabilityMarketMaker))
	_, ok = r.First(CapabilityMarketMaker)
	assert.False(t, ok)

	// Other capabilities are untouched.
	assert.Len(t, r.Lookup(CapabilityTrader), 1)
}

func TestLookupReturnsCopy(t *testing.T) {
	r := New()
	a := agent.NewAID("a")
	b := agent.NewAID("b")
	r.Register(a, CapabilityTrader)
	r.Register(b, CapabilityTrader)

	got := r.Lookup(CapabilityTrader)
	got[0] = agent.NewAID("mutated")

	again := r.Lookup(CapabilityTrader)
	assert.Equal(t, a, again[0], "callers must not be able to mutate registry state")
}

func TestConcurrentRegisterLookup(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(agent.NewAID(fmt.Sprintf("t%d", i)), CapabilityTrader)
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Lookup(CapabilityTrader)
		}()
	}
	wg.Wait()

	assert.Len(t, r.Lookup(CapabilityTrader), 50)
}

func TestAwaitFirstWaitsForRegistration(t *testing.T) {
	r := New()
	mm := agent.NewAID("maker")

	go func() {
		time.Sleep(30 * time.Millisecond)
		r.Register(mm, CapabilityMarketMaker)
	}()

	got, ok := r.AwaitFirst(CapabilityMarketMaker, 8)
	require.True(t, ok)
	assert.Equal(t, mm, got)
}

func TestAwaitFirstGivesUp(t *testing.T) {
	r := New()
	_, ok := r.AwaitFirst(CapabilityScenario, 3)
	assert.False(t, ok)
}
