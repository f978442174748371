package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/amm"
	"github.com/atmx/binary-exchange/internal/model"
	"github.com/atmx/binary-exchange/internal/order"
	"github.com/atmx/binary-exchange/internal/store"
)

// QuoteView is a market's current quote and its version token.
type QuoteView struct {
	MarketID string             `json:"market_id"`
	Status   model.MarketStatus `json:"status"`
	Quote    amm.Quote          `json:"quote"`
	Version  int64              `json:"version"`
}

// Portfolio is a user's balance and positions marked to current quotes.
type Portfolio struct {
	UserID        string               `json:"user_id"`
	Balance       decimal.Decimal      `json:"balance"`
	Positions     []model.PositionView `json:"positions"`
	TotalCost     decimal.Decimal      `json:"total_cost"`
	TotalValue    decimal.Decimal      `json:"total_value"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
}

// FeeReport lists the fees collected on one market.
type FeeReport struct {
	MarketID string               `json:"market_id"`
	Total    decimal.Decimal      `json:"total"`
	Fees     []model.CollectedFee `json:"fees"`
}

func (e *Engine) Markets(ctx context.Context) ([]model.Market, error) {
	markets, err := e.store.ListMarkets(ctx)
	if err != nil {
		return nil, unavailable("list markets", err)
	}
	if markets == nil {
		markets = []model.Market{}
	}
	return markets, nil
}

func (e *Engine) Market(ctx context.Context, id string) (*model.Market, error) {
	m, err := e.store.GetMarket(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, order.Reject(order.CodeMarketNotFound, "market %s not found", id)
	}
	if err != nil {
		return nil, unavailable("load market", err)
	}
	return m, nil
}

func (e *Engine) Quote(ctx context.Context, id string) (*QuoteView, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return nil, err
	}
	return &QuoteView{MarketID: m.ID, Status: m.Status, Quote: amm.QuoteOf(m), Version: m.Version}, nil
}

func (e *Engine) Trades(ctx context.Context, marketID string) ([]model.Trade, error) {
	if _, err := e.Market(ctx, marketID); err != nil {
		return nil, err
	}
	trades, err := e.store.ListTrades(ctx, marketID)
	if err != nil {
		return nil, unavailable("list trades", err)
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return trades, nil
}

func (e *Engine) Fees(ctx context.Context, marketID string) (*FeeReport, error) {
	if _, err := e.Market(ctx, marketID); err != nil {
		return nil, err
	}
	fees, err := e.store.ListFees(ctx, marketID)
	if err != nil {
		return nil, unavailable("list fees", err)
	}
	report := &FeeReport{MarketID: marketID, Total: decimal.Zero, Fees: fees}
	if report.Fees == nil {
		report.Fees = []model.CollectedFee{}
	}
	for _, f := range fees {
		report.Total = report.Total.Add(f.Amount)
	}
	return report, nil
}

// Orders lists a user's orders, newest first. An empty status lists all.
func (e *Engine) Orders(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	orders, err := e.store.ListOrders(ctx, userID, status)
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// Order returns one of the user's orders.
func (e *Engine) Order(ctx context.Context, userID, orderID string) (*model.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && o.UserID != userID) {
		return nil, order.Reject(order.CodeOrderNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, unavailable("load order", err)
	}
	return o, nil
}

func (e *Engine) Balance(ctx context.Context, userID string) (*model.UserBalance, error) {
	b, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, unavailable("load balance", err)
	}
	return b, nil
}

// Portfolio marks every position to its market's current quote:
// value = shares * price, unrealized P&L = value - total cost.
func (e *Engine) Portfolio(ctx context.Context, userID string) (*Portfolio, error) {
	b, err := e.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, unavailable("load positions", err)
	}

	p := &Portfolio{
		UserID:        userID,
		Balance:       b.Balance,
		Positions:     make([]model.PositionView, 0, len(positions)),
		TotalCost:     decimal.Zero,
		TotalValue:    decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}
	markets := make(map[string]*model.Market)
	for _, pos := range positions {
		m, ok := markets[pos.MarketID]
		if !ok {
			m, err = e.store.GetMarket(ctx, pos.MarketID)
			if err != nil {
				return nil, unavailable("load market", err)
			}
			markets[pos.MarketID] = m
		}
		price := m.Price(pos.Outcome)
		value := pos.Shares.Mul(price)
		view := model.PositionView{
			Position:      pos,
			CurrentPrice:  price,
			CurrentValue:  value,
			UnrealizedPnL: value.Sub(pos.TotalCost),
		}
		p.Positions = append(p.Positions, view)
		p.TotalCost = p.TotalCost.Add(pos.TotalCost)
		p.TotalValue = p.TotalValue.Add(value)
		p.UnrealizedPnL = p.UnrealizedPnL.Add(view.UnrealizedPnL)
	}
	return p, nil
}
