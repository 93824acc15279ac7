// Package book implements the transient resting-order queues used to
// bias price formation. It is pure queue manipulation: no goroutines,
// locks or time calls. The market maker's single-writer discipline is
// what makes it safe.
package book

import (
	"container/heap"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
)

var (
	// ErrNotLimit rejects market orders: they clear against the quote
	// and never rest.
	ErrNotLimit = errors.New("only limit orders rest on the book")

	// Settlement vetoes. When the settle callback reports one, the
	// offending side's resting order is cancelled and matching moves on
	// to the next candidate; the other order stays queued.
	ErrBuyerCannotPay      = errors.New("buyer cannot pay")
	ErrSellerCannotDeliver = errors.New("seller cannot deliver")
)

// SettleFunc commits a candidate trade against the ledger. A nil return
// commits the fill; ErrBuyerCannotPay / ErrSellerCannotDeliver cancel
// the failing side. Any other error cancels both sides.
type SettleFunc func(market.Trade) error

// resting is the book's private copy of a submitted order. Quantity
// reduction during partial fills happens here, never on the original.
type resting struct {
	owner agent.AID
	side  market.Side
	limit decimal.Decimal
	qty   int64
	seq   int64 // submission order, breaks price ties
}

// Book holds buy and sell interest for one symbol in price-time
// priority.
type Book struct {
	symbol string
	bids   *sideQueue
	asks   *sideQueue
	seq    int64
}

// New creates an empty book for the symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   newSideQueue(market.SideBuy),
		asks:   newSideQueue(market.SideSell),
	}
}

// Symbol returns the symbol this book trades.
func (b *Book) Symbol() string { return b.symbol }

// Add inserts a limit order. The order itself is not retained; the book
// works on a private copy.
func (b *Book) Add(o market.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Price.AtMarket {
		return ErrNotLimit
	}
	b.seq++
	r := &resting{
		owner: o.Owner,
		side:  o.Side,
		limit: o.Price.Limit,
		qty:   o.Quantity,
		seq:   b.seq,
	}
	if o.Side == market.SideBuy {
		heap.Push(b.bids, r)
	} else {
		heap.Push(b.asks, r)
	}
	return nil
}

// BuyDepth returns the number of resting buy orders.
func (b *Book) BuyDepth() int { return b.bids.Len() }

// SellDepth returns the number of resting sell orders.
func (b *Book) SellDepth() int { return b.asks.Len() }

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (decimal.Decimal, bool) { return b.bids.bestPrice() }

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (decimal.Decimal, bool) { return b.asks.bestPrice() }

// Match repeatedly clears the best crossing pair: while the best bid is
// at or above the best ask, the smaller quantity trades at the
// arithmetic mean of the two limit prices and the remainder of the
// larger order is re-queued. The settle callback may veto a fill (see
// SettleFunc); matching stops when no crossing pair remains.
func (b *Book) Match(now time.Time, settle SettleFunc) []market.Trade {
	var trades []market.Trade

	for b.bids.Len() > 0 && b.asks.Len() > 0 {
		buy := b.bids.peek()
		sell := b.asks.peek()
		if buy.limit.LessThan(sell.limit) {
			break
		}

		qty := buy.qty
		if sell.qty < qty {
			qty = sell.qty
		}
		price := buy.limit.Add(sell.limit).Div(decimal.NewFromInt(2)).Round(2)

		taker := market.SideBuy
		if sell.seq > buy.seq {
			taker = market.SideSell
		}

		t := market.Trade{
			ID:         market.NewTradeID(),
			Buyer:      buy.owner,
			Seller:     sell.owner,
			Symbol:     b.symbol,
			Quantity:   qty,
			Price:      price,
			TakerSide:  taker,
			ExecutedAt: now,
		}

		if settle != nil {
			switch err := settle(t); {
			case err == nil:
			case errors.Is(err, ErrBuyerCannotPay):
				heap.Pop(b.bids)
				continue
			case errors.Is(err, ErrSellerCannotDeliver):
				heap.Pop(b.asks)
				continue
			default:
				heap.Pop(b.bids)
				heap.Pop(b.asks)
				continue
			}
		}

		trades = append(trades, t)

		buy.qty -= qty
		sell.qty -= qty
		if buy.qty == 0 {
			heap.Pop(b.bids)
		}
		if sell.qty == 0 {
			heap.Pop(b.asks)
		}
	}

	return trades
}

// sideQueue is a heap of resting orders in price-time priority:
// max-price-first for bids, min-price-first for asks, earlier
// submission winning ties.
type sideQueue struct {
	side   market.Side
	orders []*resting
}

func newSideQueue(side market.Side) *sideQueue {
	return &sideQueue{side: side}
}

func (q *sideQueue) Len() int { return len(q.orders) }

func (q *sideQueue) Less(i, j int) bool {
	a, b := q.orders[i], q.orders[j]
	if !a.limit.Equal(b.limit) {
		if q.side == market.SideBuy {
			return a.limit.GreaterThan(b.limit)
		}
		return a.limit.LessThan(b.limit)
	}
	return a.seq < b.seq
}

func (q *sideQueue) Swap(i, j int) {
	q.orders[i], q.orders[j] = q.orders[j], q.orders[i]
}

func (q *sideQueue) Push(x any) {
	q.orders = append(q.orders, x.(*resting))
}

func (q *sideQueue) Pop() any {
	n := len(q.orders)
	r := q.orders[n-1]
	q.orders = q.orders[:n-1]
	return r
}

func (q *sideQueue) peek() *resting {
	return q.orders[0]
}

func (q *sideQueue) bestPrice() (decimal.Decimal, bool) {
	if len(q.orders) == 0 {
		return decimal.Decimal{}, false
	}
	return q.orders[0].limit, true
}
