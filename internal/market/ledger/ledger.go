// Package ledger is the authoritative per-agent cash/shares balance
// sheet. It is owned and mutated exclusively by the market maker; the
// internal lock exists only so observers can take consistent snapshots.
// Every mutation fails closed: on error nothing has changed.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/market"
)

var (
	ErrUnknownAccount     = errors.New("unknown account")
	ErrAlreadyRegistered  = errors.New("account already registered")
	ErrNegativeAmount     = errors.New("negative amount")
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Entry is one line of an account's append-only transaction history.
// Every entry is paired with exactly one trade or registration event.
type Entry struct {
	At        time.Time
	TradeID   uuid.UUID // zero for registration entries
	CashDelta decimal.Decimal
	QtyDelta  int64
	Symbol    string
}

// Portfolio is a point-in-time copy of one account.
type Portfolio struct {
	Owner   agent.AID
	Cash    decimal.Decimal
	Shares  map[string]int64
	History []Entry
}

type account struct {
	owner   agent.AID
	cash    decimal.Decimal
	shares  map[string]int64
	history []Entry
}

// Ledger maps agent identities to their accounts.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[agent.AID]*account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[agent.AID]*account)}
}

// Register opens an account with the given starting cash.
func (l *Ledger) Register(aid agent.AID, initialCash decimal.Decimal) error {
	if initialCash.IsNegative() {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[aid]; ok {
		return ErrAlreadyRegistered
	}
	l.accounts[aid] = &account{
		owner:  aid,
		cash:   initialCash,
		shares: make(map[string]int64),
		history: []Entry{{
			At:        time.Now(),
			CashDelta: initialCash,
		}},
	}
	return nil
}

// IsRegistered reports whether the identity has an account.
func (l *Ledger) IsRegistered(aid agent.AID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[aid]
	return ok
}

// Cash returns the account's cash balance.
func (l *Ledger) Cash(aid agent.AID) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[aid]
	if !ok {
		return decimal.Decimal{}, ErrUnknownAccount
	}
	return a.cash, nil
}

// Shares returns the account's position in the symbol.
func (l *Ledger) Shares(aid agent.AID, symbol string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[aid]
	if !ok {
		return 0, ErrUnknownAccount
	}
	return a.shares[symbol], nil
}

// Credit adds cash to an account.
func (l *Ledger) Credit(aid agent.AID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[aid]
	if !ok {
		return ErrUnknownAccount
	}
	a.cash = a.cash.Add(amount)
	return nil
}

// Debit removes cash from an account, failing closed when the balance
// would go negative.
func (l *Ledger) Debit(aid agent.AID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[aid]
	if !ok {
		return ErrUnknownAccount
	}
	if a.cash.LessThan(amount) {
		return ErrInsufficientCash
	}
	a.cash = a.cash.Sub(amount)
	return nil
}

// AddShares adds to a position.
func (l *Ledger) AddShares(aid agent.AID, symbol string, qty int64) error {
	if qty < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[aid]
	if !ok {
		return ErrUnknownAccount
	}
	a.shares[symbol] += qty
	return nil
}

// RemoveShares removes from a position, failing closed when the count
// would go negative.
func (l *Ledger) RemoveShares(aid agent.AID, symbol string, qty int64) error {
	if qty < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[aid]
	if !ok {
		return ErrUnknownAccount
	}
	if a.shares[symbol] < qty {
		return ErrInsufficientShares
	}
	a.shares[symbol] -= qty
	return nil
}

// ApplyTrade settles an executed trade atomically: the buyer pays the
// notional and receives the shares, the seller delivers the shares and
// receives the notional. Both sides are checked before anything moves;
// on error neither account has changed.
func (l *Ledger) ApplyTrade(t market.Trade) error {
	notional := t.Notional()
	l.mu.Lock()
	defer l.mu.Unlock()

	buyer, ok := l.accounts[t.Buyer]
	if !ok {
		return fmt.Errorf("%w: buyer %s", ErrUnknownAccount, t.Buyer)
	}
	seller, ok := l.accounts[t.Seller]
	if !ok {
		return fmt.Errorf("%w: seller %s", ErrUnknownAccount, t.Seller)
	}
	if buyer.cash.LessThan(notional) {
		return ErrInsufficientCash
	}
	if seller.shares[t.Symbol] < t.Quantity {
		return ErrInsufficientShares
	}

	buyer.cash = buyer.cash.Sub(notional)
	buyer.shares[t.Symbol] += t.Quantity
	seller.cash = seller.cash.Add(notional)
	seller.shares[t.Symbol] -= t.Quantity

	buyer.history = append(buyer.history, Entry{
		At: t.ExecutedAt, TradeID: t.ID,
		CashDelta: notional.Neg(), QtyDelta: t.Quantity, Symbol: t.Symbol,
	})
	seller.history = append(seller.history, Entry{
		At: t.ExecutedAt, TradeID: t.ID,
		CashDelta: notional, QtyDelta: -t.Quantity, Symbol: t.Symbol,
	})
	return nil
}

// Snapshot returns a deep copy of every portfolio, sorted by owner name
// for stable display.
func (l *Ledger) Snapshot() []Portfolio {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Portfolio, 0, len(l.accounts))
	for _, a := range l.accounts {
		shares := make(map[string]int64, len(a.shares))
		for sym, qty := range a.shares {
			shares[sym] = qty
		}
		history := make([]Entry, len(a.history))
		copy(history, a.history)
		out = append(out, Portfolio{
			Owner:   a.owner,
			Cash:    a.cash,
			Shares:  shares,
			History: history,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner.Name != out[j].Owner.Name {
			return out[i].Owner.Name < out[j].Owner.Name
		}
		return out[i].Owner.ID.String() < out[j].Owner.ID.String()
	})
	return out
}
