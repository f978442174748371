// Package order turns raw trade requests into typed tickets and decides,
// against current ledger state, whether and at what price they execute.
//
// Everything here is pure: no function in this package reads or writes
// the ledger.
package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/model"
)

var one = decimal.NewFromInt(1)

// Request is the wire form of a trade request. It never carries a user id,
// execution price or share count; those are derived server-side.
type Request struct {
	MarketID    string              `json:"market_id"`
	Type        string              `json:"type"`
	Side        string              `json:"side"`
	Outcome     string              `json:"outcome"`
	Amount      decimal.Decimal     `json:"amount"`
	LimitPrice  decimal.NullDecimal `json:"limit_price"`
	MaxSlippage decimal.NullDecimal `json:"max_slippage"`
	MinPrice    decimal.NullDecimal `json:"min_price"`
	MaxPrice    decimal.NullDecimal `json:"max_price"`
}

// Kind is the order-type-specific part of a ticket: either Market or Limit.
type Kind interface {
	orderType() model.OrderType
}

// Market executes immediately at the current quote, optionally guarded by
// a hard price band and a slippage tolerance.
type Market struct {
	MinPrice    decimal.NullDecimal
	MaxPrice    decimal.NullDecimal
	MaxSlippage decimal.NullDecimal
}

func (Market) orderType() model.OrderType { return model.OrderTypeMarket }

// Limit executes only while the quote satisfies LimitPrice.
type Limit struct {
	LimitPrice decimal.Decimal
}

func (Limit) orderType() model.OrderType { return model.OrderTypeLimit }

// Ticket is a parsed, shape-valid order request bound to a user.
type Ticket struct {
	UserID   string
	MarketID string
	Side     model.Side
	Outcome  model.Outcome
	Amount   decimal.Decimal
	Kind     Kind
}

// Type returns the order type of the ticket.
func (t *Ticket) Type() model.OrderType { return t.Kind.orderType() }

// Parse validates the shape of a request, without touching any ledger
// state, and binds it to the authenticated user.
func Parse(userID string, req Request) (*Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, Reject(CodeValidation, "user is required")
	}
	if strings.TrimSpace(req.MarketID) == "" {
		return nil, Reject(CodeValidation, "market_id is required")
	}

	side := model.Side(strings.ToLower(req.Side))
	if !side.Valid() {
		return nil, Reject(CodeValidation, "side must be buy or sell")
	}
	outcome := model.Outcome(strings.ToLower(req.Outcome))
	if !outcome.Valid() {
		return nil, Reject(CodeValidation, "outcome must be yes or no")
	}
	if !req.Amount.IsPositive() {
		return nil, Reject(CodeValidation, "amount must be positive")
	}
	if !req.Amount.Equal(req.Amount.Truncate(fee.ShareScale)) {
		return nil, Reject(CodeValidation, "amount allows at most %d decimal places", fee.ShareScale)
	}

	t := &Ticket{
		UserID:   userID,
		MarketID: req.MarketID,
		Side:     side,
		Outcome:  outcome,
		Amount:   req.Amount,
	}

	switch model.OrderType(strings.ToLower(req.Type)) {
	case model.OrderTypeMarket:
		k, err := parseMarket(req)
		if err != nil {
			return nil, err
		}
		t.Kind = k
	case model.OrderTypeLimit:
		k, err := parseLimit(req)
		if err != nil {
			return nil, err
		}
		t.Kind = k
	default:
		return nil, Reject(CodeValidation, "type must be market or limit")
	}
	return t, nil
}

func parseMarket(req Request) (Market, error) {
	if req.LimitPrice.Valid {
		return Market{}, Reject(CodeValidation, "limit_price applies to limit orders only")
	}
	if req.MaxSlippage.Valid {
		s := req.MaxSlippage.Decimal
		if s.IsNegative() || s.GreaterThanOrEqual(one) {
			return Market{}, Reject(CodeValidation, "max_slippage must be in [0, 1)")
		}
	}
	bounds := []struct {
		name string
		p    decimal.NullDecimal
	}{{"min_price", req.MinPrice}, {"max_price", req.MaxPrice}}
	for _, b := range bounds {
		if b.p.Valid && (b.p.Decimal.IsNegative() || b.p.Decimal.GreaterThan(one)) {
			return Market{}, Reject(CodeValidation, "%s must be in [0, 1]", b.name)
		}
	}
	if req.MinPrice.Valid && req.MaxPrice.Valid && req.MinPrice.Decimal.GreaterThan(req.MaxPrice.Decimal) {
		return Market{}, Reject(CodeValidation, "min_price must not exceed max_price")
	}
	return Market{
		MinPrice:    req.MinPrice,
		MaxPrice:    req.MaxPrice,
		MaxSlippage: req.MaxSlippage,
	}, nil
}

func parseLimit(req Request) (Limit, error) {
	if !req.LimitPrice.Valid {
		return Limit{}, Reject(CodeValidation, "limit_price is required for limit orders")
	}
	p := req.LimitPrice.Decimal
	if !p.IsPositive() || p.GreaterThanOrEqual(one) {
		return Limit{}, Reject(CodeValidation, "limit_price must be in (0, 1)")
	}
	if req.MaxSlippage.Valid || req.MinPrice.Valid || req.MaxPrice.Valid {
		return Limit{}, Reject(CodeValidation, "max_slippage, min_price and max_price apply to market orders only")
	}
	return Limit{LimitPrice: p}, nil
}

// NewOrder materializes the ticket as a pending order record.
func (t *Ticket) NewOrder(id string, now time.Time) *model.Order {
	o := &model.Order{
		ID:        id,
		UserID:    t.UserID,
		MarketID:  t.MarketID,
		Type:      t.Type(),
		Side:      t.Side,
		Outcome:   t.Outcome,
		Amount:    t.Amount,
		Status:    model.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch k := t.Kind.(type) {
	case Market:
		o.MinPrice = k.MinPrice
		o.MaxPrice = k.MaxPrice
		o.MaxSlippage = k.MaxSlippage
	case Limit:
		o.LimitPrice = decimal.NewNullDecimal(k.LimitPrice)
	}
	return o
}
