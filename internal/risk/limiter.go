// Package risk implements per-user exposure limits on a single market and
// on every market sharing a category.
//
// Exposure is measured as cost basis: the quote currency a user has put
// into a market's positions and not yet taken out. Markets in one category
// (an election, a league, a storm) tend to resolve together, so the
// category limit caps the correlated total.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketLimitExceeded is returned when a trade would push a user's
	// exposure on one market beyond the per-market maximum.
	ErrMarketLimitExceeded = errors.New("risk: per-market exposure limit exceeded")

	// ErrCategoryLimitExceeded is returned when a trade would push the
	// aggregate exposure across a category beyond the category maximum.
	ErrCategoryLimitExceeded = errors.New("risk: category exposure limit exceeded")
)

// Exposure is a user's cost basis in one market.
type Exposure struct {
	MarketID string
	Category string
	Cost     decimal.Decimal
}

// Limiter enforces exposure limits. A zero limit disables that check.
type Limiter struct {
	// MaxPerMarket is the maximum cost basis in any single market,
	// summed over both outcomes.
	MaxPerMarket decimal.Decimal

	// MaxPerCategory is the maximum aggregate cost basis across all
	// markets that share a non-empty category.
	MaxPerCategory decimal.Decimal
}

// NewLimiter creates a limiter with the given per-market and per-category
// limits.
func NewLimiter(maxPerMarket, maxPerCategory decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerMarket:   maxPerMarket,
		MaxPerCategory: maxPerCategory,
	}
}

// Enabled reports whether any limit is set.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.MaxPerMarket.IsPositive() || l.MaxPerCategory.IsPositive())
}

// CheckLimit validates whether a trade respects exposure limits.
//
// delta is the signed change in cost basis the trade causes (positive for
// buys). existing holds the user's current exposures, at most one entry per
// market. Returns nil if the trade is within limits.
func (l *Limiter) CheckLimit(marketID, category string, delta decimal.Decimal, existing []Exposure) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-market limit.
	current := decimal.Zero
	for _, e := range existing {
		if e.MarketID == marketID {
			current = current.Add(e.Cost)
		}
	}
	next := current.Add(delta)

	if l.MaxPerMarket.IsPositive() && next.GreaterThan(l.MaxPerMarket) {
		return ErrMarketLimitExceeded
	}

	// 2. Category exposure: sum across markets sharing the category.
	if category == "" || !l.MaxPerCategory.IsPositive() {
		return nil
	}
	total := next
	for _, e := range existing {
		if e.MarketID == marketID {
			continue // already counted via next above
		}
		if e.Category == category {
			total = total.Add(e.Cost)
		}
	}

	if total.GreaterThan(l.MaxPerCategory) {
		return ErrCategoryLimitExceeded
	}
	return nil
}
