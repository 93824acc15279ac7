// Package wire defines one payload schema per message topic, validated
// at the boundary. Agents exchange these structs; the colon-delimited
// encodings exist for external surfaces (the broadcast feed, session
// logs) and come with explicit decode-failure handling instead of
// best-effort substring parsing.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
)

var ErrMalformed = errors.New("malformed payload")

// Payload is implemented by every message schema. Topic ties the schema
// to its envelope topic; Encode renders the legacy colon format.
type Payload interface {
	Topic() agent.Topic
	Encode() string
}

// QuoteData carries the market maker's periodic quote broadcast.
type QuoteData struct {
	Quote market.Quote
}

func (QuoteData) Topic() agent.Topic { return agent.TopicMarketData }

func (p QuoteData) Encode() string {
	q := p.Quote
	return fmt.Sprintf("PRICE:%s:%s:BID:%s:ASK:%s:VOLUME:%d:VOLATILITY:%.4f",
		q.Symbol, q.Mid.StringFixed(2), q.Bid.StringFixed(2), q.Ask.StringFixed(2),
		q.Volume, q.Volatility)
}

// ParseQuoteData decodes a MARKET-DATA payload.
func ParseQuoteData(s string) (QuoteData, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 11 || parts[0] != "PRICE" || parts[3] != "BID" ||
		parts[5] != "ASK" || parts[7] != "VOLUME" || parts[9] != "VOLATILITY" {
		return QuoteData{}, fmt.Errorf("%w: quote %q", ErrMalformed, s)
	}
	mid, err1 := decimal.NewFromString(parts[2])
	bid, err2 := decimal.NewFromString(parts[4])
	ask, err3 := decimal.NewFromString(parts[6])
	vol, err4 := strconv.ParseInt(parts[8], 10, 64)
	sigma, err5 := strconv.ParseFloat(parts[10], 64)
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return QuoteData{}, fmt.Errorf("%w: quote %q: %v", ErrMalformed, s, err)
	}
	return QuoteData{Quote: market.Quote{
		Symbol: parts[1], Mid: mid, Bid: bid, Ask: ask,
		Volume: vol, Volatility: sigma,
	}}, nil
}

// OrderRequest asks the market maker to execute an order.
type OrderRequest struct {
	Side     market.Side
	Symbol   string
	Quantity int64
	Price    market.PriceSpec
}

func (OrderRequest) Topic() agent.Topic { return agent.TopicTrading }

func (p OrderRequest) Encode() string {
	return fmt.Sprintf("%s:%s:%d:%s", p.Side, p.Symbol, p.Quantity, p.Price)
}

// ParseOrderRequest decodes a TRADING request payload.
func ParseOrderRequest(s string) (OrderRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return OrderRequest{}, fmt.Errorf("%w: order request %q", ErrMalformed, s)
	}
	side, err := market.ParseSide(parts[0])
	if err != nil {
		return OrderRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	qty, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || qty <= 0 {
		return OrderRequest{}, fmt.Errorf("%w: quantity %q", ErrMalformed, parts[2])
	}
	spec, err := market.ParsePriceSpec(parts[3])
	if err != nil {
		return OrderRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return OrderRequest{Side: side, Symbol: parts[1], Quantity: qty, Price: spec}, nil
}

// OrderExecuted confirms an executed order back to its owner.
type OrderExecuted struct {
	Side     market.Side
	Quantity int64
	Symbol   string
	Price    decimal.Decimal
}

func (OrderExecuted) Topic() agent.Topic { return agent.TopicTrading }

func (p OrderExecuted) Encode() string {
	return fmt.Sprintf("EXECUTED:%s:%d:%s:%s", p.Side, p.Quantity, p.Symbol, p.Price.StringFixed(2))
}

// ParseOrderExecuted decodes a TRADING confirm payload.
func ParseOrderExecuted(s string) (OrderExecuted, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "EXECUTED" {
		return OrderExecuted{}, fmt.Errorf("%w: confirm %q", ErrMalformed, s)
	}
	side, err := market.ParseSide(parts[1])
	if err != nil {
		return OrderExecuted{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	qty, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return OrderExecuted{}, fmt.Errorf("%w: quantity %q", ErrMalformed, parts[2])
	}
	price, err := decimal.NewFromString(parts[4])
	if err != nil {
		return OrderExecuted{}, fmt.Errorf("%w: price %q", ErrMalformed, parts[4])
	}
	return OrderExecuted{Side: side, Quantity: qty, Symbol: parts[3], Price: price}, nil
}

// OrderRejected refuses an order with a reason. No state changed.
type OrderRejected struct {
	Reason string
}

func (OrderRejected) Topic() agent.Topic { return agent.TopicTrading }

func (p OrderRejected) Encode() string { return "REJECTED:" + p.Reason }

// ParseOrderRejected decodes a TRADING refuse payload.
func ParseOrderRejected(s string) (OrderRejected, error) {
	reason, ok := strings.CutPrefix(s, "REJECTED:")
	if !ok {
		return OrderRejected{}, fmt.Errorf("%w: refuse %q", ErrMalformed, s)
	}
	return OrderRejected{Reason: reason}, nil
}

// RegisterRequest enrolls an agent with the market maker's ledger.
type RegisterRequest struct {
	InitialCash decimal.Decimal
}

func (RegisterRequest) Topic() agent.Topic { return agent.TopicPortfolio }

func (p RegisterRequest) Encode() string {
	return "REGISTER:" + p.InitialCash.StringFixed(2)
}

// ParseRegisterRequest decodes a PORTFOLIO request payload.
func ParseRegisterRequest(s string) (RegisterRequest, error) {
	raw, ok := strings.CutPrefix(s, "REGISTER:")
	if !ok {
		return RegisterRequest{}, fmt.Errorf("%w: register %q", ErrMalformed, s)
	}
	cash, err := decimal.NewFromString(raw)
	if err != nil || cash.IsNegative() {
		return RegisterRequest{}, fmt.Errorf("%w: initial cash %q", ErrMalformed, raw)
	}
	return RegisterRequest{InitialCash: cash}, nil
}

// RegisterAck confirms a ledger registration.
type RegisterAck struct{}

func (RegisterAck) Topic() agent.Topic { return agent.TopicPortfolio }

func (RegisterAck) Encode() string { return "REGISTERED:Success" }

// TradeNotice is the broadcast form of an executed trade. TradeID is
// carried in-process only (the colon format predates it); observers
// de-duplicate on it.
type TradeNotice struct {
	TradeID  uuid.UUID
	TraderID string
	Symbol   string
	Quantity int64
	Price    decimal.Decimal
	Side     market.Side
}

// NewTradeNotice builds the notice from an executed trade, naming the
// aggressing party.
func NewTradeNotice(t market.Trade) TradeNotice {
	return TradeNotice{
		TradeID:  t.ID,
		TraderID: t.Taker().String(),
		Symbol:   t.Symbol,
		Quantity: t.Quantity,
		Price:    t.Price,
		Side:     t.TakerSide,
	}
}

func (TradeNotice) Topic() agent.Topic { return agent.TopicTradeExecuted }

func (p TradeNotice) Encode() string {
	return fmt.Sprintf("TRADE:%s:%s:%d:%s:%s",
		p.TraderID, p.Symbol, p.Quantity, p.Price.StringFixed(2), p.Side)
}

// ParseTradeNotice decodes a TRADE-EXECUTED payload.
func ParseTradeNotice(s string) (TradeNotice, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 || parts[0] != "TRADE" {
		return TradeNotice{}, fmt.Errorf("%w: trade %q", ErrMalformed, s)
	}
	qty, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || qty <= 0 {
		return TradeNotice{}, fmt.Errorf("%w: quantity %q", ErrMalformed, parts[3])
	}
	price, err := decimal.NewFromString(parts[4])
	if err != nil {
		return TradeNotice{}, fmt.Errorf("%w: price %q", ErrMalformed, parts[4])
	}
	side, err := market.ParseSide(parts[5])
	if err != nil {
		return TradeNotice{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return TradeNotice{
		TraderID: parts[1], Symbol: parts[2],
		Quantity: qty, Price: price, Side: side,
	}, nil
}

// MarketDataSubscribe requests a symbol's quote stream.
type MarketDataSubscribe struct {
	Symbol string
}

func (MarketDataSubscribe) Topic() agent.Topic { return agent.TopicMarketDataSub }

func (p MarketDataSubscribe) Encode() string { return "SUBSCRIBE:" + p.Symbol }

// ParseMarketDataSubscribe decodes a MARKET-DATA-SUB payload.
func ParseMarketDataSubscribe(s string) (MarketDataSubscribe, error) {
	sym, ok := strings.CutPrefix(s, "SUBSCRIBE:")
	if !ok || sym == "" {
		return MarketDataSubscribe{}, fmt.Errorf("%w: subscribe %q", ErrMalformed, s)
	}
	return MarketDataSubscribe{Symbol: sym}, nil
}

// SubscribeAck confirms a quote-stream subscription.
type SubscribeAck struct {
	Symbol string
}

func (SubscribeAck) Topic() agent.Topic { return agent.TopicMarketDataSub }

func (p SubscribeAck) Encode() string { return "SUBSCRIBED:" + p.Symbol }
