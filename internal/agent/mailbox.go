package agent

import (
	"sync"
	"time"
)

// Mailbox is an unbounded inbound queue with selective receive. Put never
// blocks the sender; Receive consumes the oldest envelope matching a
// pattern, leaving non-matching envelopes queued for other behaviours.
//
// The agent's scheduler goroutine is the only consumer, so a single
// notification slot is enough to wake it.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Envelope
	notify chan struct{}
	closed bool
}

func newMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Put enqueues an envelope. Returns false once the mailbox is closed.
func (m *Mailbox) Put(e Envelope) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns the oldest envelope matching the pattern.
func (m *Mailbox) take(p Pattern) (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.queue {
		if p.Matches(e) {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return e, true
		}
	}
	return Envelope{}, false
}

// Receive blocks until an envelope matching the pattern is available or
// the timeout elapses. A non-positive timeout makes it non-blocking.
func (m *Mailbox) Receive(p Pattern, timeout time.Duration) (Envelope, bool) {
	if e, ok := m.take(p); ok {
		return e, true
	}
	if timeout <= 0 {
		return Envelope{}, false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-m.notify:
			if e, ok := m.take(p); ok {
				return e, true
			}
		case <-deadline.C:
			return Envelope{}, false
		}
		if m.isClosed() {
			return Envelope{}, false
		}
	}
}

// Len returns the number of queued envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}
