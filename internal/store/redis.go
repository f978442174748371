package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL or SQLite) with a Redis
// read-through cache for markets and position lists. Writes go to the
// primary store and invalidate the cache; reads check Redis first then fall
// back to the primary.
//
// Settlement never reads through the cache: the primary re-reads every row
// under its own lock, so a stale cached quote can only cause a rejection.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) SetMarketStatus(ctx context.Context, id string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error) {
	m, err := s.primary.SetMarketStatus(ctx, id, status, resolution)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error) {
	return s.primary.CreditBalance(ctx, userID, amount)
}

func (s *CachedStore) SaveOrder(ctx context.Context, o *model.Order) error {
	return s.primary.SaveOrder(ctx, o)
}

func (s *CachedStore) CancelOrder(ctx context.Context, id, userID string, at time.Time) (*model.Order, error) {
	return s.primary.CancelOrder(ctx, id, userID, at)
}

func (s *CachedStore) ExpireOrders(ctx context.Context, cutoff, at time.Time) (int, error) {
	return s.primary.ExpireOrders(ctx, cutoff, at)
}

func (s *CachedStore) Settle(ctx context.Context, e ledger.Execution) (*ledger.Result, error) {
	res, err := s.primary.Settle(ctx, e)
	if err != nil {
		return nil, err
	}
	// Refresh the market with the new quote; drop the user's positions.
	s.cacheMarket(ctx, &res.Market)
	s.rdb.Del(ctx, positionsKey(res.Order.UserID))
	return res, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	// Cache miss.
	positions, err := s.primary.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	return s.primary.GetBalance(ctx, userID)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, marketID, outcome)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) ListOrders(ctx context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	return s.primary.ListOrders(ctx, userID, status)
}

func (s *CachedStore) ListTrades(ctx context.Context, marketID string) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, marketID)
}

func (s *CachedStore) ListFees(ctx context.Context, marketID string) ([]model.CollectedFee, error) {
	return s.primary.ListFees(ctx, marketID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string     { return fmt.Sprintf("exchange:market:%s", id) }
func positionsKey(uid string) string { return fmt.Sprintf("exchange:positions:%s", uid) }
