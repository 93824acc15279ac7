// Package registry is the process-wide capability directory: it maps a
// capability name to the agents currently offering it. It is the only
// state outside the runtime touched by many agents concurrently, so it
// is internally synchronized.
package registry

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pchave/agentmarket/internal/agent"
)

// Well-known capabilities.
const (
	CapabilityMarketMaker = "market-maker"
	CapabilityTrader      = "trader"
	CapabilityObserver    = "observer"
	CapabilityScenario    = "scenario"
)

// Registry maps capabilities to agent identities.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]agent.AID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string][]agent.AID)}
}

// Register adds the identity under the capability. Re-registering the
// same pair is a no-op.
func (r *Registry) Register(aid agent.AID, capability string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries[capability] {
		if existing == aid {
			return
		}
	}
	r.entries[capability] = append(r.entries[capability], aid)
}

// Deregister removes the identity from the capability. Unknown pairs
// are ignored.
func (r *Registry) Deregister(aid agent.AID, capability string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[capability]
	for i, existing := range list {
		if existing == aid {
			r.entries[capability] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.entries[capability]) == 0 {
		delete(r.entries, capability)
	}
}

// Lookup returns a copy of the identities offering the capability, in
// registration order. An empty result is not an error: callers degrade
// gracefully.
func (r *Registry) Lookup(capability string) []agent.AID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[capability]
	if len(list) == 0 {
		return nil
	}
	out := make([]agent.AID, len(list))
	copy(out, list)
	return out
}

// First returns the first identity offering the capability, if any.
func (r *Registry) First(capability string) (agent.AID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[capability]
	if len(list) == 0 {
		return agent.AID{}, false
	}
	return list[0], true
}

// AwaitFirst polls First with exponential backoff until the capability
// appears or attempts run out. Agents use it at bootstrap, when their
// peers may not have registered yet.
func (r *Registry) AwaitFirst(capability string, attempts int) (agent.AID, bool) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	for i := 0; i < attempts; i++ {
		if aid, ok := r.First(capability); ok {
			return aid, true
		}
		d := bo.NextBackOff()
		if d == backoff.Stop {
			break
		}
		time.Sleep(d)
	}
	return agent.AID{}, false
}
