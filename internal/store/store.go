// Package store defines the persistence interface for the exchange ledger.
// Implementations include PostgreSQL (source of truth), SQLite (single
// node), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/model"
)

var (
	// ErrNotFound is returned when a market, order or position does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when creating a market whose id is taken.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrOrderNotPending is returned when cancelling an order that already
	// left the pending state.
	ErrOrderNotPending = errors.New("store: order is not pending")

	// ErrInvalidTransition is returned for a status change out of a
	// terminal market status.
	ErrInvalidTransition = errors.New("store: invalid market status transition")

	// ErrStatusUnchanged is returned when a market already has the
	// requested status.
	ErrStatusUnchanged = errors.New("store: market already has that status")

	// ErrInvalidAmount is returned when crediting a non-positive amount.
	ErrInvalidAmount = errors.New("store: amount must be positive")
)

// Store is the ledger persistence interface. Settle is the only operation
// that moves money, shares or quotes, and it is atomic.
type Store interface {
	// --- Markets ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// SetMarketStatus changes a market's status and resolution.
	SetMarketStatus(ctx context.Context, id string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error)

	// --- Balances ---

	// GetBalance returns a user's balance; users never credited have zero.
	GetBalance(ctx context.Context, userID string) (*model.UserBalance, error)

	// CreditBalance adds a positive amount to a user's balance.
	CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error)

	// --- Positions ---

	// GetPosition returns one (user, market, outcome) position or ErrNotFound.
	GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error)

	// ListPositions returns every position a user holds or held.
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)

	// --- Orders ---

	// SaveOrder persists a pending order.
	SaveOrder(ctx context.Context, order *model.Order) error

	// GetOrder retrieves an order by its ID.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// ListOrders returns a user's orders, optionally filtered by status
	// ("" for all), newest first.
	ListOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error)

	// CancelOrder moves a user's pending order to cancelled.
	CancelOrder(ctx context.Context, id, userID string, at time.Time) (*model.Order, error)

	// ExpireOrders moves every pending order created before cutoff to
	// expired and returns how many changed.
	ExpireOrders(ctx context.Context, cutoff, at time.Time) (int, error)

	// --- Immutable ledger ---

	// ListTrades returns all trades for a market, oldest first.
	ListTrades(ctx context.Context, marketID string) ([]model.Trade, error)

	// ListFees returns all collected fees for a market, oldest first.
	ListFees(ctx context.Context, marketID string) ([]model.CollectedFee, error)

	// --- Settlement ---

	// Settle atomically applies an execution: balance, position, trade,
	// fee, market quote and order status commit together or not at all.
	// ledger errors are returned unwrapped so callers can match them.
	Settle(ctx context.Context, exec ledger.Execution) (*ledger.Result, error)
}

// checkTransition validates a market status change.
func checkTransition(from, to model.MarketStatus) error {
	if !to.Valid() || from.Terminal() {
		return ErrInvalidTransition
	}
	if from == to {
		return ErrStatusUnchanged
	}
	return nil
}
