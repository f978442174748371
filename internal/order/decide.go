package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/model"
)

// Decision says whether a ticket executes now and at what price.
type Decision struct {
	Execute      bool
	Price        decimal.Decimal // execution price when Execute
	CurrentPrice decimal.Decimal
	Reason       string // why the order waits when !Execute
}

// Decide applies the per-type execution rules to the current quote.
//
// Market orders always execute at the current price unless the price lies
// outside the requested [MinPrice, MaxPrice] band. Limit buys execute while
// current <= limit, limit sells while current >= limit; otherwise the order
// waits as pending.
func Decide(t *Ticket, m *model.Market) (Decision, error) {
	current := m.Price(t.Outcome)

	switch k := t.Kind.(type) {
	case Market:
		if k.MinPrice.Valid && current.LessThan(k.MinPrice.Decimal) {
			return Decision{}, Reject(CodePriceBoundViolated,
				"%s price %s is below min_price %s", t.Outcome, current, k.MinPrice.Decimal)
		}
		if k.MaxPrice.Valid && current.GreaterThan(k.MaxPrice.Decimal) {
			return Decision{}, Reject(CodePriceBoundViolated,
				"%s price %s is above max_price %s", t.Outcome, current, k.MaxPrice.Decimal)
		}
		return Decision{Execute: true, Price: current, CurrentPrice: current}, nil

	case Limit:
		if t.Side == model.SideBuy {
			if current.LessThanOrEqual(k.LimitPrice) {
				return Decision{Execute: true, Price: decimal.Min(current, k.LimitPrice), CurrentPrice: current}, nil
			}
		} else if current.GreaterThanOrEqual(k.LimitPrice) {
			return Decision{Execute: true, Price: decimal.Max(current, k.LimitPrice), CurrentPrice: current}, nil
		}
		return Decision{
			CurrentPrice: current,
			Reason: fmt.Sprintf("limit %s order will execute when %s price reaches %s (currently %s)",
				t.Side, t.Outcome, k.LimitPrice, current),
		}, nil
	}
	return Decision{}, Reject(CodeValidation, "unsupported order type")
}

// CheckSlippage guards market orders against the price realized by the
// trade itself. realized is the outcome's quote after the curve absorbs the
// trade; a buy may not realize above current*(1+maxSlippage), a sell not
// below current*(1-maxSlippage). Orders without a tolerance, and limit
// orders, are not checked.
func CheckSlippage(t *Ticket, current, realized decimal.Decimal) error {
	k, ok := t.Kind.(Market)
	if !ok || !k.MaxSlippage.Valid {
		return nil
	}
	tolerance := k.MaxSlippage.Decimal

	if t.Side == model.SideBuy {
		bound := current.Mul(one.Add(tolerance))
		if realized.GreaterThan(bound) {
			return Reject(CodeSlippageExceeded,
				"buy would move %s price to %s, above slippage bound %s", t.Outcome, realized, bound)
		}
		return nil
	}
	bound := current.Mul(one.Sub(tolerance))
	if realized.LessThan(bound) {
		return Reject(CodeSlippageExceeded,
			"sell would move %s price to %s, below slippage bound %s", t.Outcome, realized, bound)
	}
	return nil
}
