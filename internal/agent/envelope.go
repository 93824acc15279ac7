package agent

import (
	"errors"
	"time"
)

var ErrInvalidEnvelope = errors.New("invalid envelope")

// Performative classifies the intent of a message. The zero value is
// reserved so that Pattern can treat it as a wildcard.
type Performative uint8

const (
	Inform Performative = iota + 1
	Request
	Confirm
	Refuse
	Subscribe
)

func (p Performative) String() string {
	switch p {
	case Inform:
		return "INFORM"
	case Request:
		return "REQUEST"
	case Confirm:
		return "CONFIRM"
	case Refuse:
		return "REFUSE"
	case Subscribe:
		return "SUBSCRIBE"
	default:
		return "UNKNOWN"
	}
}

func (p Performative) valid() bool {
	return p >= Inform && p <= Subscribe
}

// Topic tags a message with its conversation channel. The set is closed;
// envelopes carrying anything else fail validation.
type Topic string

const (
	TopicMarketData    Topic = "MARKET-DATA"
	TopicTrading       Topic = "TRADING"
	TopicPortfolio     Topic = "PORTFOLIO"
	TopicTradeExecuted Topic = "TRADE-EXECUTED"
	TopicNews          Topic = "NEWS"
	TopicMarketDataSub Topic = "MARKET-DATA-SUB"
)

// Known reports whether the topic belongs to the closed set.
func (t Topic) Known() bool {
	switch t {
	case TopicMarketData, TopicTrading, TopicPortfolio,
		TopicTradeExecuted, TopicNews, TopicMarketDataSub:
		return true
	}
	return false
}

// Envelope is an addressed, typed message. Payloads are the structs from
// the wire package; receivers decode at the boundary and drop anything
// they cannot interpret.
type Envelope struct {
	Sender       AID
	Receivers    []AID
	Performative Performative
	Topic        Topic
	Payload      any
	SentAt       time.Time
}

// Validate enforces the envelope invariants: at least one receiver,
// exactly one known performative, and a topic from the closed set.
func (e Envelope) Validate() error {
	if len(e.Receivers) == 0 {
		return ErrInvalidEnvelope
	}
	if !e.Performative.valid() {
		return ErrInvalidEnvelope
	}
	if !e.Topic.Known() {
		return ErrInvalidEnvelope
	}
	return nil
}

// Reply builds an envelope addressed back to the sender, keeping the topic.
func (e Envelope) Reply(from AID, perf Performative, payload any) Envelope {
	return Envelope{
		Sender:       from,
		Receivers:    []AID{e.Sender},
		Performative: perf,
		Topic:        e.Topic,
		Payload:      payload,
		SentAt:       time.Now(),
	}
}

// Pattern selects envelopes by topic and/or performative. Zero fields
// match anything.
type Pattern struct {
	Topic        Topic
	Performative Performative
}

// Any matches every envelope.
var Any = Pattern{}

// Matches reports whether the envelope satisfies the pattern.
func (p Pattern) Matches(e Envelope) bool {
	if p.Topic != "" && p.Topic != e.Topic {
		return false
	}
	if p.Performative != 0 && p.Performative != e.Performative {
		return false
	}
	return true
}
