// Package engine runs the order-execution pipeline: parse, validate,
// decide, price, settle, publish. Every trade request, whichever surface
// it arrives on, goes through SubmitOrder.
//
// Submissions on one market are serialized by a per-market lock, and all
// of one user's submissions by a per-user lock, always taken in that
// order. The store's Settle re-verifies balance, shares and the quote
// version under its own lock, so the in-process locks are not the only
// line against oversells when several processes share a database.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/amm"
	"github.com/atmx/binary-exchange/internal/events"
	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/metrics"
	"github.com/atmx/binary-exchange/internal/model"
	"github.com/atmx/binary-exchange/internal/order"
	"github.com/atmx/binary-exchange/internal/risk"
	"github.com/atmx/binary-exchange/internal/store"
)

// ErrLedgerUnavailable wraps every infrastructure failure. The submission
// must be treated as not applied and may be retried by the caller.
var ErrLedgerUnavailable = errors.New("engine: ledger unavailable")

// Result is the outcome of an accepted submission. Rejections are returned
// as *order.Rejection errors instead.
type Result struct {
	Status         model.OrderStatus `json:"status"`
	OrderID        string            `json:"order_id"`
	TradeID        string            `json:"trade_id,omitempty"`
	ExecutionPrice *decimal.Decimal  `json:"execution_price,omitempty"`
	Shares         *decimal.Decimal  `json:"shares,omitempty"`
	FeeAmount      *decimal.Decimal  `json:"fee_amount,omitempty"`
	Quote          *amm.Quote        `json:"quote,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// Engine executes orders against a Store.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	limiter   *risk.Limiter
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	markets *keyedMutex
	users   *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where committed changes are announced.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLimiter enables exposure limits on buys.
func WithLimiter(l *risk.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over st.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		publisher: events.Nop{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		markets:   newKeyedMutex(),
		users:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitOrder runs one trade request for an authenticated user. It returns
// a filled or pending Result, an *order.Rejection, or an error wrapping
// ErrLedgerUnavailable. A rejected submission writes nothing.
func (e *Engine) SubmitOrder(ctx context.Context, userID string, req order.Request) (*Result, error) {
	t, err := order.Parse(userID, req)
	if err != nil {
		return nil, e.rejected(userID, req.MarketID, err)
	}

	unlockMarket := e.markets.Lock(t.MarketID)
	defer unlockMarket()
	unlockUser := e.users.Lock(t.UserID)
	defer unlockUser()

	m, err := e.store.GetMarket(ctx, t.MarketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejected(userID, t.MarketID,
			order.Reject(order.CodeMarketNotFound, "market %s not found", t.MarketID))
	}
	if err != nil {
		return nil, unavailable("load market", err)
	}
	balance, err := e.store.GetBalance(ctx, t.UserID)
	if err != nil {
		return nil, unavailable("load balance", err)
	}
	position, err := e.store.GetPosition(ctx, t.UserID, t.MarketID, t.Outcome)
	if errors.Is(err, store.ErrNotFound) {
		position = nil
	} else if err != nil {
		return nil, unavailable("load position", err)
	}

	if err := order.Validate(t, m, balance, position); err != nil {
		return nil, e.rejected(userID, t.MarketID, err)
	}
	if t.Side == model.SideBuy && e.limiter.Enabled() {
		if err := e.checkExposure(ctx, t, m); err != nil {
			return nil, err
		}
	}

	decision, err := order.Decide(t, m)
	if err != nil {
		return nil, e.rejected(userID, t.MarketID, err)
	}

	now := e.now()
	o := t.NewOrder(e.newID(), now)

	if !decision.Execute {
		if err := e.store.SaveOrder(ctx, o); err != nil {
			return nil, unavailable("save pending order", err)
		}
		metrics.OrdersTotal.WithLabelValues(string(o.Type), string(o.Side), string(o.Status)).Inc()
		e.logger.Info("order pending",
			"order_id", o.ID,
			"user", o.UserID,
			"market", o.MarketID,
			"side", o.Side,
			"outcome", o.Outcome,
			"limit_price", o.LimitPrice.Decimal.String(),
			"current_price", decision.CurrentPrice.String(),
		)
		e.publish(ctx, events.Event{
			Type:     events.TypeOrderPending,
			MarketID: o.MarketID,
			OrderID:  o.ID,
			UserID:   o.UserID,
			Status:   string(o.Status),
			Outcome:  string(o.Outcome),
			Side:     string(o.Side),
			Price:    events.Dec(o.LimitPrice.Decimal),
			Amount:   events.Dec(o.Amount),
			At:       now,
		})
		return &Result{Status: o.Status, OrderID: o.ID, Reason: decision.Reason}, nil
	}

	fees, err := fee.Compute(t.Amount, m.TradingFee, decision.Price)
	if err != nil {
		return nil, e.rejected(userID, t.MarketID, order.Reject(order.CodeValidation, "%v", err))
	}
	after := amm.Apply(amm.QuoteOf(m), t.Outcome, t.Side, fees.Gross)
	if err := order.CheckSlippage(t, decision.CurrentPrice, after.Price(t.Outcome)); err != nil {
		return nil, e.rejected(userID, t.MarketID, err)
	}

	exec := ledger.Execution{
		Order:        o,
		TradeID:      e.newID(),
		FeeID:        e.newID(),
		Fees:         fees,
		QuoteVersion: m.Version,
		At:           now,
	}
	start := time.Now()
	res, err := e.store.Settle(ctx, exec)
	metrics.SettlementLatency.WithLabelValues(string(t.Side)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, e.settleFailed(userID, t.MarketID, err)
	}

	e.recordFill(res)
	e.publishTrade(ctx, res)

	quote := amm.QuoteOf(&res.Market)
	return &Result{
		Status:         res.Order.Status,
		OrderID:        res.Order.ID,
		TradeID:        res.Trade.ID,
		ExecutionPrice: &res.Trade.Price,
		Shares:         &res.Order.Shares,
		FeeAmount:      &res.Fee.Amount,
		Quote:          &quote,
	}, nil
}

// checkExposure applies the risk limiter to a buy. The trade adds its net
// amount to the user's cost basis in the market.
func (e *Engine) checkExposure(ctx context.Context, t *order.Ticket, m *model.Market) error {
	exposures, err := e.exposures(ctx, t.UserID)
	if err != nil {
		return err
	}
	delta := t.Amount.Sub(t.Amount.Mul(m.TradingFee))
	err = e.limiter.CheckLimit(m.ID, m.Category, delta, exposures)
	switch {
	case errors.Is(err, risk.ErrMarketLimitExceeded):
		return e.rejected(t.UserID, m.ID, order.Reject(order.CodePositionLimitExceeded,
			"buy would exceed the per-market exposure limit of %s", e.limiter.MaxPerMarket))
	case errors.Is(err, risk.ErrCategoryLimitExceeded):
		return e.rejected(t.UserID, m.ID, order.Reject(order.CodePositionLimitExceeded,
			"buy would exceed the %q category exposure limit of %s", m.Category, e.limiter.MaxPerCategory))
	}
	return err
}

// exposures sums a user's cost basis per market, tagged with the market's
// category.
func (e *Engine) exposures(ctx context.Context, userID string) ([]risk.Exposure, error) {
	positions, err := e.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, unavailable("load positions", err)
	}
	index := make(map[string]int)
	var out []risk.Exposure
	for _, p := range positions {
		i, ok := index[p.MarketID]
		if !ok {
			m, err := e.store.GetMarket(ctx, p.MarketID)
			if err != nil {
				return nil, unavailable("load market", err)
			}
			i = len(out)
			index[p.MarketID] = i
			out = append(out, risk.Exposure{MarketID: m.ID, Category: m.Category})
		}
		out[i].Cost = out[i].Cost.Add(p.TotalCost)
	}
	return out, nil
}

// settleFailed maps a Settle error. Balance, share and status failures are
// state conflicts found under the settlement lock; they are rejections like
// their validation-time counterparts. Anything else is infrastructure.
func (e *Engine) settleFailed(userID, marketID string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return e.rejected(userID, marketID, order.Reject(order.CodeInsufficientBalance,
			"balance no longer covers the order"))
	case errors.Is(err, ledger.ErrInsufficientShares):
		return e.rejected(userID, marketID, order.Reject(order.CodeInsufficientShares,
			"position no longer covers the order"))
	case errors.Is(err, ledger.ErrMarketInactive):
		return e.rejected(userID, marketID, order.Reject(order.CodeMarketInactive,
			"market %s stopped trading", marketID))
	case errors.Is(err, ledger.ErrEmptyFill):
		return e.rejected(userID, marketID, order.Reject(order.CodeValidation,
			"order is too small to fill a share"))
	case errors.Is(err, store.ErrNotFound):
		return e.rejected(userID, marketID, order.Reject(order.CodeMarketNotFound,
			"market %s not found", marketID))
	}
	e.logger.Error("settlement failed", "user", userID, "market", marketID, "err", err)
	return unavailable("settle", err)
}

// rejected logs and counts a rejection and returns it unchanged.
func (e *Engine) rejected(userID, marketID string, err error) error {
	code := order.CodeOf(err)
	metrics.RejectionsTotal.WithLabelValues(string(code)).Inc()
	e.logger.Info("order rejected",
		"user", userID,
		"market", marketID,
		"code", code,
		"reason", err.Error(),
	)
	return err
}

func (e *Engine) recordFill(res *ledger.Result) {
	o := res.Order
	metrics.OrdersTotal.WithLabelValues(string(o.Type), string(o.Side), string(o.Status)).Inc()
	gross, _ := res.Trade.Amount.Float64()
	feeAmount, _ := res.Fee.Amount.Float64()
	metrics.MarketVolume.WithLabelValues(o.MarketID, string(o.Side)).Add(gross)
	metrics.FeesCollected.WithLabelValues(o.MarketID).Add(feeAmount)

	e.logger.Info("order filled",
		"order_id", o.ID,
		"trade_id", res.Trade.ID,
		"user", o.UserID,
		"market", o.MarketID,
		"type", o.Type,
		"side", o.Side,
		"outcome", o.Outcome,
		"amount", res.Trade.Amount.String(),
		"price", res.Trade.Price.String(),
		"shares", o.Shares.String(),
		"fee", res.Fee.Amount.String(),
		"new_yes_price", res.Market.YesPrice.String(),
	)
}

func (e *Engine) publishTrade(ctx context.Context, res *ledger.Result) {
	e.publish(ctx, events.Event{
		Type:     events.TypeTrade,
		MarketID: res.Market.ID,
		OrderID:  res.Order.ID,
		TradeID:  res.Trade.ID,
		UserID:   res.Order.UserID,
		Status:   string(res.Order.Status),
		Outcome:  string(res.Trade.Outcome),
		Side:     string(res.Trade.Side),
		YesPrice: events.Dec(res.Market.YesPrice),
		NoPrice:  events.Dec(res.Market.NoPrice),
		Price:    events.Dec(res.Trade.Price),
		Shares:   events.Dec(res.Trade.Shares),
		Amount:   events.Dec(res.Trade.Amount),
		Fee:      events.Dec(res.Fee.Amount),
		At:       res.Trade.CreatedAt,
	})
}

// publish announces a committed change. Failures are logged and counted;
// the change itself stands.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		e.logger.Warn("event publish failed", "type", ev.Type, "market", ev.MarketID, "err", err)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, op, err)
}
