// Package market holds the immutable value types the trading agents and
// the market maker exchange: orders, trades and quotes. All money is
// decimal at cent precision.
package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/agent"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrInvalidQuote = errors.New("invalid quote")
)

// Side of an order or trade.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide decodes the wire form of a side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("%w: side %q", ErrInvalidOrder, s)
	}
}

// MarketPriceSpec is the wire form of "execute at the quoted price".
const MarketPriceSpec = "MARKET_PRICE"

// PriceSpec is either "at quoted price" or a non-negative limit price.
type PriceSpec struct {
	AtMarket bool
	Limit    decimal.Decimal
}

// MarketPrice returns the at-quoted-price spec.
func MarketPrice() PriceSpec { return PriceSpec{AtMarket: true} }

// LimitPrice returns a limit price spec.
func LimitPrice(p decimal.Decimal) PriceSpec { return PriceSpec{Limit: p} }

func (p PriceSpec) String() string {
	if p.AtMarket {
		return MarketPriceSpec
	}
	return p.Limit.StringFixed(2)
}

// ParsePriceSpec decodes the wire form of a price spec.
func ParsePriceSpec(s string) (PriceSpec, error) {
	if s == MarketPriceSpec {
		return MarketPrice(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return PriceSpec{}, fmt.Errorf("%w: price %q", ErrInvalidOrder, s)
	}
	if d.IsNegative() {
		return PriceSpec{}, fmt.Errorf("%w: negative limit price", ErrInvalidOrder)
	}
	return LimitPrice(d), nil
}

// Order describes a requested transaction. It is created by a strategy
// agent on intent, consumed atomically by the market maker, and never
// mutated after submission; partial-fill bookkeeping happens on private
// copies inside the order book.
type Order struct {
	Owner       agent.AID
	Side        Side
	Symbol      string
	Quantity    int64
	Price       PriceSpec
	SubmittedAt time.Time
}

// Validate enforces the order invariants.
func (o Order) Validate() error {
	if o.Owner.IsZero() {
		return fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if o.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: bad side", ErrInvalidOrder)
	}
	if !o.Price.AtMarket && o.Price.Limit.IsNegative() {
		return fmt.Errorf("%w: negative limit price", ErrInvalidOrder)
	}
	return nil
}

// Trade is an executed transaction: the only record that ever crosses
// into the ledger as a committed fact. Immutable once created.
type Trade struct {
	ID         uuid.UUID
	Buyer      agent.AID
	Seller     agent.AID
	Symbol     string
	Quantity   int64
	Price      decimal.Decimal // clearing price
	TakerSide  Side            // side of the party whose order triggered the trade
	ExecutedAt time.Time
}

// Taker returns the identity of the aggressing party.
func (t Trade) Taker() agent.AID {
	if t.TakerSide == SideBuy {
		return t.Buyer
	}
	return t.Seller
}

// Notional returns quantity times clearing price.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// NewTradeID mints a trade identifier. Observers de-duplicate on it, so
// re-delivered broadcasts never double-count.
func NewTradeID() uuid.UUID { return uuid.New() }

// Quote is the authoritative bid/mid/ask snapshot for the traded symbol
// at a point in time. Immutable after broadcast.
type Quote struct {
	Symbol     string
	Bid        decimal.Decimal
	Mid        decimal.Decimal
	Ask        decimal.Decimal
	Volume     int64
	Volatility float64
	At         time.Time
}

// Validate enforces bid < mid < ask.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidQuote)
	}
	if !q.Bid.LessThan(q.Mid) || !q.Mid.LessThan(q.Ask) {
		return fmt.Errorf("%w: bid %s mid %s ask %s", ErrInvalidQuote,
			q.Bid.StringFixed(2), q.Mid.StringFixed(2), q.Ask.StringFixed(2))
	}
	return nil
}
