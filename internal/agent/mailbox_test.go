package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(sender, receiver AID, perf Performative, topic Topic, payload any) Envelope {
	return Envelope{
		Sender:       sender,
		Receivers:    []AID{receiver},
		Performative: perf,
		Topic:        topic,
		Payload:      payload,
		SentAt:       time.Now(),
	}
}

func TestMailboxSelectiveReceive(t *testing.T) {
	me := NewAID("me")
	other := NewAID("other")
	m := newMailbox()

	require.True(t, m.Put(env(other, me, Inform, TopicNews, "n1")))
	require.True(t, m.Put(env(other, me, Request, TopicTrading, "o1")))
	require.True(t, m.Put(env(other, me, Inform, TopicNews, "n2")))

	// Selecting TRADING consumes o1 and leaves both news envelopes queued.
	e, ok := m.Receive(Pattern{Topic: TopicTrading}, 0)
	require.True(t, ok)
	assert.Equal(t, "o1", e.Payload)
	assert.Equal(t, 2, m.Len())

	// Oldest matching wins.
	e, ok = m.Receive(Pattern{Topic: TopicNews}, 0)
	require.True(t, ok)
	assert.Equal(t, "n1", e.Payload)

	e, ok = m.Receive(Any, 0)
	require.True(t, ok)
	assert.Equal(t, "n2", e.Payload)
	assert.Equal(t, 0, m.Len())
}

func TestMailboxReceiveTimeout(t *testing.T) {
	m := newMailbox()

	start := time.Now()
	_, ok := m.Receive(Pattern{Topic: TopicTrading}, 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// Non-blocking form returns immediately.
	_, ok = m.Receive(Any, 0)
	assert.False(t, ok)
}

func TestMailboxReceiveWakesOnPut(t *testing.T) {
	me := NewAID("me")
	other := NewAID("other")
	m := newMailbox()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Put(env(other, me, Confirm, TopicPortfolio, "ack"))
	}()

	e, ok := m.Receive(Pattern{Performative: Confirm}, time.Second)
	require.True(t, ok)
	assert.Equal(t, "ack", e.Payload)
}

func TestMailboxPutAfterClose(t *testing.T) {
	me := NewAID("me")
	m := newMailbox()
	m.close()
	assert.False(t, m.Put(env(me, me, Inform, TopicNews, nil)))
}

func TestEnvelopeValidate(t *testing.T) {
	a, b := NewAID("a"), NewAID("b")

	tests := []struct {
		name string
		e    Envelope
		ok   bool
	}{
		{"valid", env(a, b, Inform, TopicNews, nil), true},
		{"no receivers", Envelope{Sender: a, Performative: Inform, Topic: TopicNews}, false},
		{"zero performative", Envelope{Sender: a, Receivers: []AID{b}, Topic: TopicNews}, false},
		{"unknown topic", env(a, b, Inform, Topic("GOSSIP"), nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEnvelope)
			}
		})
	}
}

func TestPatternZeroFieldsMatchAnything(t *testing.T) {
	a, b := NewAID("a"), NewAID("b")
	e := env(a, b, Refuse, TopicTrading, nil)

	assert.True(t, Any.Matches(e))
	assert.True(t, Pattern{Topic: TopicTrading}.Matches(e))
	assert.True(t, Pattern{Performative: Refuse}.Matches(e))
	assert.False(t, Pattern{Topic: TopicNews}.Matches(e))
	assert.False(t, Pattern{Topic: TopicTrading, Performative: Inform}.Matches(e))
}
