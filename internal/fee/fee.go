// Package fee derives the fee on a trade and the fee-adjusted amounts and
// share counts that settlement moves.
package fee

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRate is returned for a trading fee outside [0, 1).
	ErrInvalidRate = errors.New("fee: rate must be in [0, 1)")

	// ErrInvalidPrice is returned when the execution price is not positive.
	ErrInvalidPrice = errors.New("fee: execution price must be positive")

	// ErrInvalidAmount is returned when the gross amount is not positive.
	ErrInvalidAmount = errors.New("fee: amount must be positive")

	// ErrDustAmount is returned when the gross or net share count rounds
	// to zero at ShareScale.
	ErrDustAmount = errors.New("fee: amount is too small to fill a share")
)

// ShareScale is the number of decimal places share counts are rounded to.
var ShareScale int32 = 8

// Breakdown is the fee-adjusted view of one execution.
//
// A buyer pays Gross and receives NetShares; a seller gives up GrossShares
// and receives Net. The fee is always realized in quote currency.
type Breakdown struct {
	Gross       decimal.Decimal `json:"gross_amount"`
	Fee         decimal.Decimal `json:"fee_amount"`
	Net         decimal.Decimal `json:"net_amount"`
	Rate        decimal.Decimal `json:"rate"`
	Price       decimal.Decimal `json:"price"`
	GrossShares decimal.Decimal `json:"gross_shares"`
	NetShares   decimal.Decimal `json:"net_shares"`
}

// ValidateRate checks that a market trading fee is usable.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	return nil
}

// SharesFor converts a quote-currency amount into shares at price.
func SharesFor(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Div(price).Round(ShareScale)
}

// Compute derives the fee breakdown for a gross amount executed at price:
//
//	fee        = gross * rate
//	net        = gross - fee
//	netShares  = net / price
//	grossShares = gross / price
func Compute(gross, rate, price decimal.Decimal) (Breakdown, error) {
	if !gross.IsPositive() {
		return Breakdown{}, ErrInvalidAmount
	}
	if !price.IsPositive() {
		return Breakdown{}, ErrInvalidPrice
	}
	if err := ValidateRate(rate); err != nil {
		return Breakdown{}, err
	}

	feeAmount := gross.Mul(rate)
	net := gross.Sub(feeAmount)
	grossShares := SharesFor(gross, price)
	netShares := SharesFor(net, price)
	if !grossShares.IsPositive() || !netShares.IsPositive() {
		return Breakdown{}, ErrDustAmount
	}

	return Breakdown{
		Gross:       gross,
		Fee:         feeAmount,
		Net:         net,
		Rate:        rate,
		Price:       price,
		GrossShares: grossShares,
		NetShares:   netShares,
	}, nil
}
