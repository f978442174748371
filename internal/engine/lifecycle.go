package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/amm"
	"github.com/atmx/binary-exchange/internal/events"
	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/metrics"
	"github.com/atmx/binary-exchange/internal/model"
	"github.com/atmx/binary-exchange/internal/order"
	"github.com/atmx/binary-exchange/internal/store"
)

// CancelOrder moves one of the user's pending orders to cancelled. Orders
// of other users are reported as not found.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	o, err := e.store.CancelOrder(ctx, orderID, userID, e.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, order.Reject(order.CodeOrderNotFound, "order %s not found", orderID)
	case errors.Is(err, store.ErrOrderNotPending):
		return nil, order.Reject(order.CodeOrderNotPending, "order %s is no longer pending", orderID)
	case err != nil:
		return nil, unavailable("cancel order", err)
	}

	metrics.OrdersTotal.WithLabelValues(string(o.Type), string(o.Side), string(o.Status)).Inc()
	e.logger.Info("order cancelled", "order_id", o.ID, "user", o.UserID, "market", o.MarketID)
	e.publish(ctx, events.Event{
		Type:     events.TypeOrderCancelled,
		MarketID: o.MarketID,
		OrderID:  o.ID,
		UserID:   o.UserID,
		Status:   string(o.Status),
		At:       o.UpdatedAt,
	})
	return o, nil
}

// ExpireStale moves every pending order older than ttl to expired.
func (e *Engine) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	now := e.now()
	n, err := e.store.ExpireOrders(ctx, now.Add(-ttl), now)
	if err != nil {
		return 0, unavailable("expire orders", err)
	}
	if n > 0 {
		metrics.OrdersExpired.Add(float64(n))
		e.logger.Info("orders expired", "count", n, "ttl", ttl.String())
		e.publish(ctx, events.Event{Type: events.TypeOrdersExpired, Count: n, At: now})
	}
	return n, nil
}

// RunExpiry sweeps stale pending orders every interval until ctx is done.
func (e *Engine) RunExpiry(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireStale(ctx, ttl); err != nil {
				e.logger.Error("expiry sweep failed", "err", err)
			}
		}
	}
}

// NewMarket describes a market to create. A zero YesPrice opens at 0.5.
type NewMarket struct {
	ID         string          `json:"id"`
	Question   string          `json:"question"`
	Category   string          `json:"category"`
	YesPrice   decimal.Decimal `json:"yes_price"`
	Liquidity  decimal.Decimal `json:"liquidity"`
	TradingFee decimal.Decimal `json:"trading_fee"`
}

// CreateMarket opens a new active market. A blank ID is generated.
func (e *Engine) CreateMarket(ctx context.Context, nm NewMarket) (*model.Market, error) {
	if strings.TrimSpace(nm.Question) == "" {
		return nil, order.Reject(order.CodeValidation, "question is required")
	}
	yes := nm.YesPrice
	if yes.IsZero() {
		yes = decimal.NewFromFloat(0.5)
	}
	q, err := amm.NewQuote(yes)
	if err != nil {
		return nil, order.Reject(order.CodeValidation, "yes_price must be in [%s, %s]", amm.MinPrice, amm.MaxPrice)
	}
	if err := fee.ValidateRate(nm.TradingFee); err != nil {
		return nil, order.Reject(order.CodeValidation, "trading_fee must be in [0, 1)")
	}
	if nm.Liquidity.IsNegative() {
		return nil, order.Reject(order.CodeValidation, "liquidity must not be negative")
	}

	id := nm.ID
	if id == "" {
		id = e.newID()
	}
	now := e.now()
	m := &model.Market{
		ID:         id,
		Question:   nm.Question,
		Category:   strings.ToLower(strings.TrimSpace(nm.Category)),
		Status:     model.MarketActive,
		YesPrice:   q.Yes,
		NoPrice:    q.No,
		Volume:     decimal.Zero,
		Liquidity:  nm.Liquidity,
		TradingFee: nm.TradingFee,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateMarket(ctx, m); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		return nil, unavailable("create market", err)
	}

	e.logger.Info("market created",
		"id", m.ID,
		"category", m.Category,
		"yes_price", m.YesPrice.String(),
		"trading_fee", m.TradingFee.String(),
	)
	e.publish(ctx, events.Event{
		Type:     events.TypeMarketCreated,
		MarketID: m.ID,
		Status:   string(m.Status),
		YesPrice: events.Dec(m.YesPrice),
		NoPrice:  events.Dec(m.NoPrice),
		At:       now,
	})
	return m, nil
}

// SetMarketStatus changes a market's status. Resolving requires the
// winning outcome; other statuses take none. Resolved and cancelled are
// terminal, and setting the current status again is rejected.
func (e *Engine) SetMarketStatus(ctx context.Context, marketID string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error) {
	if !status.Valid() {
		return nil, order.Reject(order.CodeValidation, "unknown market status %q", status)
	}
	if status == model.MarketResolved && !resolution.Valid() {
		return nil, order.Reject(order.CodeValidation, "resolving a market requires outcome yes or no")
	}
	if status != model.MarketResolved && resolution != "" {
		return nil, order.Reject(order.CodeValidation, "only resolved markets carry an outcome")
	}

	// Status changes wait for in-flight submissions on the market.
	unlock := e.markets.Lock(marketID)
	defer unlock()

	m, err := e.store.SetMarketStatus(ctx, marketID, status, resolution)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, order.Reject(order.CodeMarketNotFound, "market %s not found", marketID)
	case errors.Is(err, store.ErrInvalidTransition):
		return nil, order.Reject(order.CodeMarketInactive, "market %s can no longer change status", marketID)
	case errors.Is(err, store.ErrStatusUnchanged):
		return nil, order.Reject(order.CodeValidation, "market %s is already %s", marketID, status)
	case err != nil:
		return nil, unavailable("set market status", err)
	}

	e.logger.Info("market status changed", "id", m.ID, "status", m.Status, "resolution", m.Resolution)
	e.publish(ctx, events.Event{
		Type:     events.TypeMarketStatus,
		MarketID: m.ID,
		Status:   string(m.Status),
		Outcome:  string(m.Resolution),
		At:       m.UpdatedAt,
	})
	return m, nil
}

// Credit adds a positive amount to a user's balance.
func (e *Engine) Credit(ctx context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, order.Reject(order.CodeValidation, "user is required")
	}
	if !amount.IsPositive() {
		return nil, order.Reject(order.CodeValidation, "amount must be positive")
	}
	unlock := e.users.Lock(userID)
	defer unlock()

	b, err := e.store.CreditBalance(ctx, userID, amount)
	if err != nil {
		return nil, unavailable("credit balance", err)
	}
	e.logger.Info("balance credited", "user", userID, "amount", amount.String(), "balance", b.Balance.String())
	return b, nil
}
