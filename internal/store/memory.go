package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/ledger"
	"github.com/atmx/binary-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	balances  map[string]*model.UserBalance
	positions map[positionKey]*model.Position
	orders    map[string]*model.Order
	trades    []model.Trade
	fees      []model.CollectedFee
}

type positionKey struct {
	userID   string
	marketID string
	outcome  model.Outcome
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*model.Market),
		balances:  make(map[string]*model.UserBalance),
		positions: make(map[positionKey]*model.Position),
		orders:    make(map[string]*model.Order),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrAlreadyExists)
	}
	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) SetMarketStatus(_ context.Context, id string, status model.MarketStatus, resolution model.Outcome) (*model.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err := checkTransition(m.Status, status); err != nil {
		return nil, err
	}
	m.Status = status
	m.Resolution = resolution
	m.Version++
	m.UpdatedAt = time.Now().UTC()
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*model.UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[userID]; ok {
		copy := *b
		return &copy, nil
	}
	return &model.UserBalance{UserID: userID, Balance: decimal.Zero}, nil
}

func (s *MemoryStore) CreditBalance(_ context.Context, userID string, amount decimal.Decimal) (*model.UserBalance, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[userID]
	if !ok {
		b = &model.UserBalance{UserID: userID}
		s.balances[userID] = b
	}
	b.Balance = b.Balance.Add(amount)
	b.UpdatedAt = time.Now().UTC()
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{userID, marketID, outcome}]
	if !ok {
		return nil, fmt.Errorf("position %s/%s/%s: %w", userID, marketID, outcome, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for k, p := range s.positions {
		if k.userID == userID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID != result[j].MarketID {
			return result[i].MarketID < result[j].MarketID
		}
		return result[i].Outcome > result[j].Outcome // yes before no
	})
	return result, nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *o
	s.orders[o.ID] = &copy
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, userID string, status model.OrderStatus) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.UserID != userID || (status != "" && o.Status != status) {
			continue
		}
		result = append(result, *o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) CancelOrder(_ context.Context, id, userID string, at time.Time) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if o.Status != model.OrderPending {
		return nil, ErrOrderNotPending
	}
	o.Status = model.OrderCancelled
	o.UpdatedAt = at
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) ExpireOrders(_ context.Context, cutoff, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.orders {
		if o.Status == model.OrderPending && o.CreatedAt.Before(cutoff) {
			o.Status = model.OrderExpired
			o.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, marketID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListFees(_ context.Context, marketID string) ([]model.CollectedFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.CollectedFee
	for _, f := range s.fees {
		if f.MarketID == marketID {
			result = append(result, f)
		}
	}
	return result, nil
}

// Settle applies an execution under the store's write lock. Rows are only
// written after ledger.Apply succeeds, so a failed settlement leaves every
// map untouched.
func (s *MemoryStore) Settle(_ context.Context, e ledger.Execution) (*ledger.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := e.Order
	m, ok := s.markets[o.MarketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", o.MarketID, ErrNotFound)
	}

	st := ledger.State{Market: *m, Balance: model.UserBalance{UserID: o.UserID}}
	if b, ok := s.balances[o.UserID]; ok {
		st.Balance = *b
	}
	key := positionKey{o.UserID, o.MarketID, o.Outcome}
	if p, ok := s.positions[key]; ok {
		copy := *p
		st.Position = &copy
	}

	res, err := ledger.Apply(st, e)
	if err != nil {
		return nil, err
	}

	market := res.Market
	balance := res.Balance
	position := res.Position
	filled := res.Order
	s.markets[market.ID] = &market
	s.balances[balance.UserID] = &balance
	s.positions[key] = &position
	s.orders[filled.ID] = &filled
	s.trades = append(s.trades, res.Trade)
	s.fees = append(s.fees, res.Fee)
	return res, nil
}
