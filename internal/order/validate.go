package order

import (
	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/model"
)

// Validate checks a ticket against the market, the user's balance and, for
// sells, the user's position in the traded outcome. position may be nil
// when the user holds none.
func Validate(t *Ticket, m *model.Market, balance *model.UserBalance, position *model.Position) error {
	if m.Status != model.MarketActive {
		return Reject(CodeMarketInactive, "market %s is %s", m.ID, m.Status)
	}

	switch t.Side {
	case model.SideBuy:
		if balance == nil || balance.Balance.LessThan(t.Amount) {
			have := "0"
			if balance != nil {
				have = balance.Balance.String()
			}
			return Reject(CodeInsufficientBalance, "balance %s is below order amount %s", have, t.Amount)
		}
	case model.SideSell:
		price := m.Price(t.Outcome)
		if !price.IsPositive() {
			return Reject(CodeMarketInactive, "market %s has no %s quote", m.ID, t.Outcome)
		}
		required := fee.SharesFor(t.Amount, price)
		if !required.IsPositive() {
			return Reject(CodeValidation, "selling %s at %s fills no shares", t.Amount, price)
		}
		if position == nil || position.Shares.LessThan(required) {
			held := "0"
			if position != nil {
				held = position.Shares.String()
			}
			return Reject(CodeInsufficientShares, "selling %s requires %s %s shares, holding %s",
				t.Amount, required, t.Outcome, held)
		}
	}

	if l, ok := t.Kind.(Limit); ok && !l.LimitPrice.IsPositive() {
		return Reject(CodeValidation, "limit_price must be positive")
	}
	return nil
}
