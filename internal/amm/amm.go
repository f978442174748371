// Package amm implements the price-impact curve that maintains each
// market's yes/no quote.
//
// This is not a constant-product or LMSR curve: every executed trade nudges
// the quote by a fixed base impact plus a volume term, capped so that no
// single trade moves the price by more than MaxImpact. The quote is clamped
// to [MinPrice, MaxPrice] so the opposite side always stays priceable.
//
// All values use shopspring/decimal, never float64.
package amm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/model"
)

var (
	// ErrPriceOutOfRange is returned when an initial quote lies outside
	// [MinPrice, MaxPrice].
	ErrPriceOutOfRange = errors.New("amm: price outside allowed range")

	// MinPrice is the lowest quote either outcome can reach.
	MinPrice = decimal.RequireFromString("0.05")

	// MaxPrice is the highest quote either outcome can reach.
	MaxPrice = decimal.RequireFromString("0.95")

	// BaseImpact is applied to every trade regardless of size.
	BaseImpact = decimal.RequireFromString("0.01")

	// MaxVolumeImpact caps the size-dependent part of the impact.
	MaxVolumeImpact = decimal.RequireFromString("0.05")

	// VolumeScale is the trade amount that produces one full unit of
	// volume multiplier before the cap.
	VolumeScale = decimal.NewFromInt(1000)
)

var one = decimal.NewFromInt(1)

// Quote is the yes/no price pair of a market.
type Quote struct {
	Yes decimal.Decimal `json:"yes"`
	No  decimal.Decimal `json:"no"`
}

// NewQuote builds a quote from a yes price, deriving no as 1 - yes.
func NewQuote(yes decimal.Decimal) (Quote, error) {
	if yes.LessThan(MinPrice) || yes.GreaterThan(MaxPrice) {
		return Quote{}, ErrPriceOutOfRange
	}
	return Quote{Yes: yes, No: one.Sub(yes)}, nil
}

// QuoteOf reads the current quote of a market.
func QuoteOf(m *model.Market) Quote {
	return Quote{Yes: m.YesPrice, No: m.NoPrice}
}

// Price returns the quote for one outcome.
func (q Quote) Price(o model.Outcome) decimal.Decimal {
	if o == model.OutcomeNo {
		return q.No
	}
	return q.Yes
}

// Impact returns the absolute price move caused by a trade of the given
// gross amount:
//
//	impact = BaseImpact + min(amount / VolumeScale, MaxVolumeImpact)
func Impact(amount decimal.Decimal) decimal.Decimal {
	volume := amount.Div(VolumeScale)
	if volume.GreaterThan(MaxVolumeImpact) {
		volume = MaxVolumeImpact
	}
	if volume.IsNegative() {
		volume = decimal.Zero
	}
	return BaseImpact.Add(volume)
}

// Direction returns +1 when a trade pushes the yes price up and -1 when it
// pushes it down. Buying yes and selling no are both bullish on yes.
func Direction(o model.Outcome, s model.Side) int {
	if (o == model.OutcomeYes && s == model.SideBuy) || (o == model.OutcomeNo && s == model.SideSell) {
		return 1
	}
	return -1
}

// Clamp bounds a price to [MinPrice, MaxPrice].
func Clamp(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	if p.GreaterThan(MaxPrice) {
		return MaxPrice
	}
	return p
}

// Apply advances the quote for one executed trade. amount is the gross
// (pre-fee) trade amount. The result always satisfies Yes + No == 1.
func Apply(q Quote, o model.Outcome, s model.Side, amount decimal.Decimal) Quote {
	impact := Impact(amount)
	if Direction(o, s) < 0 {
		impact = impact.Neg()
	}
	yes := Clamp(q.Yes.Add(impact))
	return Quote{Yes: yes, No: one.Sub(yes)}
}
