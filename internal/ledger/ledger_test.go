package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/fee"
	"github.com/atmx/binary-exchange/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var tolerance = d(0.000001)

func state(yes, balance float64, pos *model.Position) State {
	return State{
		Market: model.Market{
			ID:         "m1",
			Status:     model.MarketActive,
			YesPrice:   d(yes),
			NoPrice:    decimal.NewFromInt(1).Sub(d(yes)),
			TradingFee: d(0.02),
			Version:    3,
		},
		Balance:  model.UserBalance{UserID: "u1", Balance: d(balance)},
		Position: pos,
	}
}

func execution(t *testing.T, side model.Side, outcome model.Outcome, amount, price float64) Execution {
	t.Helper()
	b, err := fee.Compute(d(amount), d(0.02), d(price))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	return Execution{
		Order: &model.Order{
			ID: "o1", UserID: "u1", MarketID: "m1",
			Type: model.OrderTypeMarket, Side: side, Outcome: outcome,
			Amount: d(amount), Status: model.OrderPending,
		},
		TradeID:      "t1",
		FeeID:        "f1",
		Fees:         b,
		QuoteVersion: 3,
		At:           time.Now().UTC(),
	}
}

func TestApply_MarketBuy(t *testing.T) {
	res, err := Apply(state(0.5, 100, nil), execution(t, model.SideBuy, model.OutcomeYes, 100, 0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Balance.Balance.IsZero() {
		t.Errorf("expected balance 0, got %s", res.Balance.Balance)
	}
	if !res.Position.Shares.Equal(d(196)) {
		t.Errorf("expected 196 shares, got %s", res.Position.Shares)
	}
	if !res.Position.TotalCost.Equal(d(98)) || !res.Position.AvgPrice.Equal(d(0.5)) {
		t.Errorf("expected cost 98 @ 0.5, got %s @ %s", res.Position.TotalCost, res.Position.AvgPrice)
	}
	if !res.Fee.Amount.Equal(d(2)) || !res.Fee.OriginalAmount.Equal(d(100)) {
		t.Errorf("unexpected fee row: %+v", res.Fee)
	}
	if res.Fee.TradeID != res.Trade.ID {
		t.Error("fee should link to its trade")
	}
	if !res.Trade.Shares.Equal(d(200)) || !res.Trade.Amount.Equal(d(100)) {
		t.Errorf("trade should record gross shares and amount: %+v", res.Trade)
	}
	if res.Trade.BuyerID != "u1" || res.Trade.SellerID != model.HouseAccount {
		t.Errorf("unexpected counterparties: %s/%s", res.Trade.BuyerID, res.Trade.SellerID)
	}
	if !res.Market.YesPrice.Equal(d(0.56)) || !res.Market.Volume.Equal(d(100)) {
		t.Errorf("unexpected market after trade: yes=%s volume=%s", res.Market.YesPrice, res.Market.Volume)
	}
	if res.Market.Version != 4 {
		t.Errorf("expected version 4, got %d", res.Market.Version)
	}
	if res.Order.Status != model.OrderFilled || !res.Order.Shares.Equal(d(196)) || !res.Order.AvgFillPrice.Equal(d(0.5)) {
		t.Errorf("order not marked filled correctly: %+v", res.Order)
	}
}

func TestApply_SellCreditsNet(t *testing.T) {
	pos := &model.Position{UserID: "u1", MarketID: "m1", Outcome: model.OutcomeYes,
		Shares: d(100), AvgPrice: d(0.4), TotalCost: d(40)}

	res, err := Apply(state(0.5, 10, pos), execution(t, model.SideSell, model.OutcomeYes, 20, 0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20 gross, 0.4 fee, 19.6 net; 40 shares sold.
	if !res.Balance.Balance.Equal(d(29.6)) {
		t.Errorf("expected balance 29.6, got %s", res.Balance.Balance)
	}
	if !res.Position.Shares.Equal(d(60)) {
		t.Errorf("expected 60 shares left, got %s", res.Position.Shares)
	}
	if !res.Position.AvgPrice.Equal(d(0.4)) {
		t.Errorf("sell must not move avg price, got %s", res.Position.AvgPrice)
	}
	if !res.Position.TotalCost.Equal(d(24)) {
		t.Errorf("expected cost 24, got %s", res.Position.TotalCost)
	}
	if !res.Market.YesPrice.Equal(d(0.47)) {
		t.Errorf("selling yes should lower yes to 0.47, got %s", res.Market.YesPrice)
	}
	if res.Trade.SellerID != "u1" {
		t.Errorf("expected seller u1, got %s", res.Trade.SellerID)
	}
	if pos.Shares.Equal(d(60)) {
		t.Error("Apply must not modify the input position")
	}
}

func TestApply_Oversell(t *testing.T) {
	pos := &model.Position{Shares: d(10), AvgPrice: d(0.5), TotalCost: d(5)}
	_, err := Apply(state(0.5, 0, pos), execution(t, model.SideSell, model.OutcomeYes, 7.5, 0.5))
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}

	_, err = Apply(state(0.5, 0, nil), execution(t, model.SideSell, model.OutcomeYes, 1, 0.5))
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares without position, got %v", err)
	}
}

func TestApply_StaleBalance(t *testing.T) {
	_, err := Apply(state(0.5, 50, nil), execution(t, model.SideBuy, model.OutcomeYes, 60, 0.5))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestApply_QuoteMoved(t *testing.T) {
	e := execution(t, model.SideBuy, model.OutcomeYes, 10, 0.5)
	e.QuoteVersion = 2
	if _, err := Apply(state(0.5, 100, nil), e); !errors.Is(err, ErrQuoteMoved) {
		t.Errorf("expected ErrQuoteMoved, got %v", err)
	}
}

func TestApply_InactiveMarket(t *testing.T) {
	s := state(0.5, 100, nil)
	s.Market.Status = model.MarketDisputed
	if _, err := Apply(s, execution(t, model.SideBuy, model.OutcomeYes, 10, 0.5)); !errors.Is(err, ErrMarketInactive) {
		t.Errorf("expected ErrMarketInactive, got %v", err)
	}
}

func TestApply_EmptyFill(t *testing.T) {
	pos := &model.Position{Shares: d(10), AvgPrice: d(0.5), TotalCost: d(5)}

	sell := execution(t, model.SideSell, model.OutcomeYes, 1, 0.5)
	sell.Fees.GrossShares = decimal.Zero
	if _, err := Apply(state(0.5, 0, pos), sell); !errors.Is(err, ErrEmptyFill) {
		t.Errorf("sell: expected ErrEmptyFill, got %v", err)
	}

	buy := execution(t, model.SideBuy, model.OutcomeNo, 1, 0.5)
	buy.Fees.NetShares = decimal.Zero
	if _, err := Apply(state(0.5, 10, nil), buy); !errors.Is(err, ErrEmptyFill) {
		t.Errorf("buy: expected ErrEmptyFill, got %v", err)
	}
}

func TestSell_ToZeroKeepsRow(t *testing.T) {
	p := model.Position{UserID: "u1", Shares: d(25), AvgPrice: d(0.4), TotalCost: d(10)}
	p, err := Sell(p, d(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Shares.IsZero() || !p.TotalCost.IsZero() {
		t.Errorf("expected zeroed position, got %s shares cost %s", p.Shares, p.TotalCost)
	}
	if p.UserID != "u1" {
		t.Error("zeroed position should keep its identity")
	}
}

func TestCostBasisInvariant(t *testing.T) {
	p := model.Position{}
	steps := []struct {
		buy           bool
		shares, price float64
	}{
		{true, 100, 0.5},
		{true, 33.3, 0.61},
		{false, 50, 0},
		{true, 7.77, 0.13},
		{false, 90, 0},
		{true, 1, 0.95},
		{false, 2.07, 0},
	}
	for i, s := range steps {
		var err error
		if s.buy {
			p = Buy(p, d(s.shares), d(s.shares).Mul(d(s.price)))
		} else {
			p, err = Sell(p, d(s.shares))
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		if p.Shares.IsNegative() {
			t.Fatalf("step %d: negative shares %s", i, p.Shares)
		}
		diff := p.TotalCost.Sub(p.Shares.Mul(p.AvgPrice)).Abs()
		if diff.GreaterThan(tolerance) {
			t.Fatalf("step %d: totalCost %s != shares %s * avg %s", i, p.TotalCost, p.Shares, p.AvgPrice)
		}
	}
}
