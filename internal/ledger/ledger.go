// Package ledger computes the effect of one execution on every ledger row
// it touches: balance, position, market quote, trade, fee and order.
//
// Apply is pure. Each store reads the rows under its own lock or
// transaction, calls Apply, and writes back every row of the Result or
// none of them.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/amm"
	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/model"
)

var (
	// ErrInsufficientBalance is returned when the balance read under the
	// settlement lock no longer covers a buy.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientShares is returned when the position read under the
	// settlement lock no longer covers a sell.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")

	// ErrMarketInactive is returned when the market stopped trading between
	// decision and settlement.
	ErrMarketInactive = errors.New("ledger: market is not active")

	// ErrQuoteMoved is returned when the market version differs from the
	// one the execution was priced against.
	ErrQuoteMoved = errors.New("ledger: quote moved since execution was priced")

	// ErrEmptyFill is returned for an execution that moves no shares.
	ErrEmptyFill = errors.New("ledger: execution fills no shares")
)

// Execution is a decided, fee-adjusted order ready for settlement.
type Execution struct {
	Order        *model.Order // pending order; filled copy is returned
	TradeID      string
	FeeID        string
	Fees         fee.Breakdown
	QuoteVersion int64 // market version the price was decided against
	At           time.Time
}

// State is the set of rows an execution reads. Position is nil when the
// user has never held the outcome.
type State struct {
	Market   model.Market
	Balance  model.UserBalance
	Position *model.Position
}

// Result is every row an execution writes.
type Result struct {
	Market   model.Market
	Balance  model.UserBalance
	Position model.Position
	Order    model.Order
	Trade    model.Trade
	Fee      model.CollectedFee
}

// Apply settles an execution against s. On error nothing in s is modified
// and the caller must write nothing.
func Apply(s State, e Execution) (*Result, error) {
	o := e.Order
	if s.Market.Status != model.MarketActive {
		return nil, ErrMarketInactive
	}
	if s.Market.Version != e.QuoteVersion {
		return nil, ErrQuoteMoved
	}
	if !e.Fees.GrossShares.IsPositive() || !e.Fees.NetShares.IsPositive() {
		return nil, ErrEmptyFill
	}

	pos := model.Position{UserID: o.UserID, MarketID: o.MarketID, Outcome: o.Outcome}
	if s.Position != nil {
		pos = *s.Position
	}
	bal := s.Balance
	bal.UserID = o.UserID
	b := e.Fees

	trade := model.Trade{
		ID:        e.TradeID,
		OrderID:   o.ID,
		MarketID:  o.MarketID,
		Outcome:   o.Outcome,
		Side:      o.Side,
		Shares:    b.GrossShares,
		Price:     b.Price,
		Amount:    b.Gross,
		CreatedAt: e.At,
	}

	var filledShares decimal.Decimal
	switch o.Side {
	case model.SideBuy:
		if bal.Balance.LessThan(b.Gross) {
			return nil, ErrInsufficientBalance
		}
		bal.Balance = bal.Balance.Sub(b.Gross)
		pos = Buy(pos, b.NetShares, b.Net)
		filledShares = b.NetShares
		trade.BuyerID, trade.SellerID = o.UserID, model.HouseAccount

	case model.SideSell:
		var err error
		pos, err = Sell(pos, b.GrossShares)
		if err != nil {
			return nil, err
		}
		bal.Balance = bal.Balance.Add(b.Net)
		filledShares = b.GrossShares
		trade.BuyerID, trade.SellerID = model.HouseAccount, o.UserID
	}
	pos.UpdatedAt = e.At
	bal.UpdatedAt = e.At

	q := amm.Apply(amm.QuoteOf(&s.Market), o.Outcome, o.Side, b.Gross)
	m := s.Market
	m.YesPrice = q.Yes
	m.NoPrice = q.No
	m.Volume = m.Volume.Add(b.Gross)
	m.Version++
	m.UpdatedAt = e.At

	filled := *o
	filled.Status = model.OrderFilled
	filled.Shares = filledShares
	filled.AvgFillPrice = b.Price
	filled.UpdatedAt = e.At

	return &Result{
		Market:   m,
		Balance:  bal,
		Position: pos,
		Order:    filled,
		Trade:    trade,
		Fee: model.CollectedFee{
			ID:             e.FeeID,
			TradeID:        trade.ID,
			MarketID:       o.MarketID,
			UserID:         o.UserID,
			Amount:         b.Fee,
			Rate:           b.Rate,
			OriginalAmount: b.Gross,
			CreatedAt:      e.At,
		},
	}, nil
}

// Buy extends a position with weighted-average cost.
func Buy(p model.Position, shares, cost decimal.Decimal) model.Position {
	p.Shares = p.Shares.Add(shares)
	p.TotalCost = p.TotalCost.Add(cost)
	if p.Shares.IsPositive() {
		p.AvgPrice = p.TotalCost.Div(p.Shares)
	}
	return p
}

// Sell reduces a position by shares, removing cost basis at the average
// price. The average price itself does not move. A position sold down to
// zero keeps its row with zero shares and cost.
func Sell(p model.Position, shares decimal.Decimal) (model.Position, error) {
	if p.Shares.LessThan(shares) {
		return p, ErrInsufficientShares
	}
	p.Shares = p.Shares.Sub(shares)
	p.TotalCost = p.TotalCost.Sub(shares.Mul(p.AvgPrice))
	if !p.Shares.IsPositive() {
		p.Shares = decimal.Zero
		p.TotalCost = decimal.Zero
	}
	return p, nil
}
