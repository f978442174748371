// Package model defines the core domain types shared across the exchange.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// HouseAccount is the counterparty of every trade: the automated market
// maker quotes both sides, so users never match against each other.
const HouseAccount = "amm"

// Outcome is one of the two binary results a share pays out on.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool { return o == OutcomeYes || o == OutcomeNo }

// Side is the direction of an order from the user's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType distinguishes immediately executable orders from price-gated ones.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order. Orders leave pending at
// most once.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// MarketStatus controls whether a market accepts trades.
type MarketStatus string

const (
	MarketActive    MarketStatus = "active"
	MarketResolved  MarketStatus = "resolved"
	MarketDisputed  MarketStatus = "disputed"
	MarketCancelled MarketStatus = "cancelled"
)

// Valid reports whether s is a known market status.
func (s MarketStatus) Valid() bool {
	switch s {
	case MarketActive, MarketResolved, MarketDisputed, MarketCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s MarketStatus) Terminal() bool {
	return s == MarketResolved || s == MarketCancelled
}

// Market is a binary question with an AMM-maintained quote.
// Invariant: YesPrice + NoPrice == 1, both within the curve clamp.
type Market struct {
	ID         string          `json:"id" db:"id"`
	Question   string          `json:"question" db:"question"`
	Category   string          `json:"category" db:"category"`
	Status     MarketStatus    `json:"status" db:"status"`
	Resolution Outcome         `json:"resolution,omitempty" db:"resolution"`
	YesPrice   decimal.Decimal `json:"yes_price" db:"yes_price"`
	NoPrice    decimal.Decimal `json:"no_price" db:"no_price"`
	Volume     decimal.Decimal `json:"volume" db:"volume"`
	Liquidity  decimal.Decimal `json:"liquidity" db:"liquidity"`
	TradingFee decimal.Decimal `json:"trading_fee" db:"trading_fee"`
	// Version increments on every quote or status change and acts as the
	// optimistic concurrency token for settlement.
	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Price returns the current quote for one outcome.
func (m *Market) Price(o Outcome) decimal.Decimal {
	if o == OutcomeNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// Position is a user's holding of one outcome in one market.
// Invariant at rest: TotalCost == Shares * AvgPrice.
type Position struct {
	UserID    string          `json:"user_id" db:"user_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Outcome   Outcome         `json:"outcome" db:"outcome"`
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	AvgPrice  decimal.Decimal `json:"avg_price" db:"avg_price"`
	TotalCost decimal.Decimal `json:"total_cost" db:"total_cost"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Order is a persisted trade request. Optional price fields are null when
// the request did not carry them.
type Order struct {
	ID           string              `json:"id" db:"id"`
	UserID       string              `json:"user_id" db:"user_id"`
	MarketID     string              `json:"market_id" db:"market_id"`
	Type         OrderType           `json:"type" db:"type"`
	Side         Side                `json:"side" db:"side"`
	Outcome      Outcome             `json:"outcome" db:"outcome"`
	Amount       decimal.Decimal     `json:"amount" db:"amount"`
	LimitPrice   decimal.NullDecimal `json:"limit_price" db:"limit_price"`
	MinPrice     decimal.NullDecimal `json:"min_price" db:"min_price"`
	MaxPrice     decimal.NullDecimal `json:"max_price" db:"max_price"`
	MaxSlippage  decimal.NullDecimal `json:"max_slippage" db:"max_slippage"`
	Shares       decimal.Decimal     `json:"shares" db:"shares"`
	AvgFillPrice decimal.Decimal     `json:"avg_fill_price" db:"avg_fill_price"`
	Status       OrderStatus         `json:"status" db:"status"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable execution record. One trade per executed order.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	OrderID   string          `json:"order_id" db:"order_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Outcome   Outcome         `json:"outcome" db:"outcome"`
	Side      Side            `json:"side" db:"side"`
	Shares    decimal.Decimal `json:"shares" db:"shares"` // gross
	Price     decimal.Decimal `json:"price" db:"price"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // gross
	BuyerID   string          `json:"buyer_id" db:"buyer_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// CollectedFee is the immutable fee taken on one trade.
type CollectedFee struct {
	ID             string          `json:"id" db:"id"`
	TradeID        string          `json:"trade_id" db:"trade_id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Rate           decimal.Decimal `json:"rate" db:"rate"`
	OriginalAmount decimal.Decimal `json:"original_amount" db:"original_amount"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// UserBalance is a user's quote-currency balance. Never negative.
type UserBalance struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// PositionView is a position marked to the market's current quote.
type PositionView struct {
	Position
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`  // shares * current price
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // currentValue - totalCost
}
