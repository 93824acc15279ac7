package maker

import "time"

// Config holds the market maker's pricing parameters.
type Config struct {
	// Symbol is the single traded instrument.
	Symbol string
	// InitialPrice seeds the authoritative mid.
	InitialPrice float64
	// BaseSpread is the relative bid-ask spread at zero volatility.
	BaseSpread float64
	// ImbalanceWeight scales the order-flow imbalance term of the
	// price step (k1).
	ImbalanceWeight float64
	// SpreadVolWeight widens the spread as volatility rises (k2).
	SpreadVolWeight float64
	// WalkWeight scales the bounded random-walk term of the price step.
	WalkWeight float64
	// BaseVolatility is used until enough returns exist to measure the
	// realized figure.
	BaseVolatility float64
	// VolatilityWindow is the number of tick returns the realized
	// volatility is computed over.
	VolatilityWindow int
	// QuoteInterval is the simulated time between quote recomputes.
	QuoteInterval time.Duration
	// CommissionRate is charged on the notional of dealer fills.
	CommissionRate float64
	// DealerCash and DealerShares seed the maker's own account, the
	// implicit counter-liquidity market orders clear against.
	DealerCash   float64
	DealerShares int64
	// Seed fixes the random walk for reproducible sessions; zero means
	// seed from the clock.
	Seed int64
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:           "AAPL",
		InitialPrice:     100.0,
		BaseSpread:       0.004,
		ImbalanceWeight:  0.5,
		SpreadVolWeight:  10.0,
		WalkWeight:       0.3,
		BaseVolatility:   0.01,
		VolatilityWindow: 32,
		QuoteInterval:    5 * time.Second,
		CommissionRate:   0,
		DealerCash:       1e12,
		DealerShares:     1_000_000_000,
	}
}
