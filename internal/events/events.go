// Package events fans committed ledger changes out to subscribers: a Kafka
// topic for downstream consumers and the WebSocket hub for live clients.
//
// Events are published only after the store commits. A failed publish is
// logged by the caller and never undoes a settlement.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type names the kind of change an event reports.
type Type string

const (
	TypeTrade          Type = "trade"
	TypeOrderPending   Type = "order_pending"
	TypeOrderCancelled Type = "order_cancelled"
	TypeOrdersExpired  Type = "orders_expired"
	TypeMarketCreated  Type = "market_created"
	TypeMarketStatus   Type = "market_status"
)

// Event is a committed change. Price fields carry the market quote after
// the change; trade fields are set for TypeTrade only.
type Event struct {
	Type     Type             `json:"type"`
	MarketID string           `json:"market_id,omitempty"`
	OrderID  string           `json:"order_id,omitempty"`
	TradeID  string           `json:"trade_id,omitempty"`
	UserID   string           `json:"user_id,omitempty"`
	Status   string           `json:"status,omitempty"`
	Outcome  string           `json:"outcome,omitempty"`
	Side     string           `json:"side,omitempty"`
	YesPrice *decimal.Decimal `json:"yes_price,omitempty"`
	NoPrice  *decimal.Decimal `json:"no_price,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Shares   *decimal.Decimal `json:"shares,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Fee      *decimal.Decimal `json:"fee,omitempty"`
	Count    int              `json:"count,omitempty"`
	At       time.Time        `json:"at"`
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Dec returns a pointer to d for the optional decimal fields.
func Dec(d decimal.Decimal) *decimal.Decimal { return &d }
