package order

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func nd(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

func market(yes float64) *model.Market {
	return &model.Market{
		ID:         "m1",
		Status:     model.MarketActive,
		YesPrice:   d(yes),
		NoPrice:    decimal.NewFromInt(1).Sub(d(yes)),
		TradingFee: d(0.02),
	}
}

func mustParse(t *testing.T, req Request) *Ticket {
	t.Helper()
	tk, err := Parse("user1", req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tk
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

// --- Parse ---

func TestParse_MarketOrder(t *testing.T) {
	tk := mustParse(t, Request{
		MarketID: "m1", Type: "market", Side: "BUY", Outcome: "Yes",
		Amount: d(10), MaxSlippage: nd(0.05),
	})
	if tk.Type() != model.OrderTypeMarket {
		t.Errorf("expected market type, got %s", tk.Type())
	}
	if tk.Side != model.SideBuy || tk.Outcome != model.OutcomeYes {
		t.Errorf("side/outcome not normalized: %s/%s", tk.Side, tk.Outcome)
	}
	k := tk.Kind.(Market)
	if !k.MaxSlippage.Valid || !k.MaxSlippage.Decimal.Equal(d(0.05)) {
		t.Errorf("max_slippage not carried: %+v", k.MaxSlippage)
	}
}

func TestParse_Rejections(t *testing.T) {
	base := Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10)}

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"missing market", func(r *Request) { r.MarketID = "" }},
		{"bad side", func(r *Request) { r.Side = "hold" }},
		{"bad outcome", func(r *Request) { r.Outcome = "maybe" }},
		{"bad type", func(r *Request) { r.Type = "stop" }},
		{"zero amount", func(r *Request) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *Request) { r.Amount = d(-1) }},
		{"amount below share scale", func(r *Request) { r.Amount = d(0.000000001) }},
		{"limit without price", func(r *Request) { r.Type = "limit" }},
		{"limit price zero", func(r *Request) { r.Type = "limit"; r.LimitPrice = nd(0) }},
		{"limit price one", func(r *Request) { r.Type = "limit"; r.LimitPrice = nd(1) }},
		{"limit with slippage", func(r *Request) { r.Type = "limit"; r.LimitPrice = nd(0.4); r.MaxSlippage = nd(0.01) }},
		{"market with limit price", func(r *Request) { r.LimitPrice = nd(0.4) }},
		{"slippage of one", func(r *Request) { r.MaxSlippage = nd(1) }},
		{"min above max", func(r *Request) { r.MinPrice = nd(0.6); r.MaxPrice = nd(0.4) }},
		{"max above one", func(r *Request) { r.MaxPrice = nd(1.5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := Parse("user1", req)
			wantCode(t, err, CodeValidation)
		})
	}
}

func TestParse_RequiresUser(t *testing.T) {
	_, err := Parse("", Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(1)})
	wantCode(t, err, CodeValidation)
}

// --- Validate ---

func TestValidate_InactiveMarket(t *testing.T) {
	m := market(0.5)
	m.Status = model.MarketResolved
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10)})

	err := Validate(tk, m, &model.UserBalance{Balance: d(100)}, nil)
	wantCode(t, err, CodeMarketInactive)
}

func TestValidate_InsufficientBalance(t *testing.T) {
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(100.01)})

	wantCode(t, Validate(tk, market(0.5), &model.UserBalance{Balance: d(100)}, nil), CodeInsufficientBalance)
	wantCode(t, Validate(tk, market(0.5), nil, nil), CodeInsufficientBalance)
}

func TestValidate_ExactBalanceAllowed(t *testing.T) {
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(100)})
	if err := Validate(tk, market(0.5), &model.UserBalance{Balance: d(100)}, nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidate_InsufficientShares(t *testing.T) {
	// 7.5 at 0.5 requires 15 shares.
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "sell", Outcome: "yes", Amount: d(7.5)})

	err := Validate(tk, market(0.5), nil, &model.Position{Shares: d(10)})
	wantCode(t, err, CodeInsufficientShares)
	if !strings.Contains(err.Error(), "15") {
		t.Errorf("message should name required shares: %v", err)
	}

	wantCode(t, Validate(tk, market(0.5), nil, nil), CodeInsufficientShares)
}

func TestValidate_SellWithinShares(t *testing.T) {
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "sell", Outcome: "no", Amount: d(3)})
	// no price 0.3 → 10 shares required.
	if err := Validate(tk, market(0.7), nil, &model.Position{Shares: d(10)}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidate_SellFillingNoShares(t *testing.T) {
	tk := &Ticket{
		UserID: "user1", MarketID: "m1", Side: model.SideSell, Outcome: model.OutcomeYes,
		Amount: d(0.000000001), Kind: Market{},
	}
	err := Validate(tk, market(0.5), nil, &model.Position{Shares: d(10)})
	wantCode(t, err, CodeValidation)
}

// --- Decide ---

func TestDecide_MarketExecutesAtCurrent(t *testing.T) {
	tk := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "no", Amount: d(10)})
	dec, err := Decide(tk, market(0.6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Execute || !dec.Price.Equal(d(0.4)) {
		t.Errorf("expected execution at 0.4, got %+v", dec)
	}
}

func TestDecide_MarketPriceBounds(t *testing.T) {
	below := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10), MinPrice: nd(0.55)})
	_, err := Decide(below, market(0.5))
	wantCode(t, err, CodePriceBoundViolated)

	above := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10), MaxPrice: nd(0.45)})
	_, err = Decide(above, market(0.5))
	wantCode(t, err, CodePriceBoundViolated)

	inside := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10), MinPrice: nd(0.5), MaxPrice: nd(0.5)})
	if _, err := Decide(inside, market(0.5)); err != nil {
		t.Errorf("price on the band edge should execute: %v", err)
	}
}

func TestDecide_Limit(t *testing.T) {
	tests := []struct {
		name    string
		side    string
		limit   float64
		yes     float64
		execute bool
	}{
		{"buy below limit", "buy", 0.55, 0.5, true},
		{"buy at limit", "buy", 0.5, 0.5, true},
		{"buy above limit", "buy", 0.5, 0.6, false},
		{"sell above limit", "sell", 0.45, 0.5, true},
		{"sell at limit", "sell", 0.5, 0.5, true},
		{"sell below limit", "sell", 0.55, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := mustParse(t, Request{MarketID: "m1", Type: "limit", Side: tt.side, Outcome: "yes", Amount: d(10), LimitPrice: nd(tt.limit)})
			dec, err := Decide(tk, market(tt.yes))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dec.Execute != tt.execute {
				t.Fatalf("expected execute=%v, got %+v", tt.execute, dec)
			}
			if dec.Execute && !dec.Price.Equal(d(tt.yes)) {
				t.Errorf("expected execution at current price %v, got %s", tt.yes, dec.Price)
			}
			if !dec.Execute && !strings.Contains(dec.Reason, "will execute when") {
				t.Errorf("pending reason should explain trigger: %q", dec.Reason)
			}
		})
	}
}

// --- Slippage ---

func TestCheckSlippage(t *testing.T) {
	buy := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10), MaxSlippage: nd(0.01)})
	wantCode(t, CheckSlippage(buy, d(0.5), d(0.52)), CodeSlippageExceeded)
	if err := CheckSlippage(buy, d(0.5), d(0.505)); err != nil {
		t.Errorf("realized price on the bound should pass: %v", err)
	}

	sell := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "sell", Outcome: "yes", Amount: d(10), MaxSlippage: nd(0.1)})
	wantCode(t, CheckSlippage(sell, d(0.5), d(0.44)), CodeSlippageExceeded)
	if err := CheckSlippage(sell, d(0.5), d(0.46)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	unguarded := mustParse(t, Request{MarketID: "m1", Type: "market", Side: "buy", Outcome: "yes", Amount: d(10)})
	if err := CheckSlippage(unguarded, d(0.5), d(0.9)); err != nil {
		t.Errorf("orders without max_slippage are not checked: %v", err)
	}
}

func TestNewOrder_CarriesKindFields(t *testing.T) {
	tk := mustParse(t, Request{MarketID: "m1", Type: "limit", Side: "buy", Outcome: "yes", Amount: d(10), LimitPrice: nd(0.4)})
	o := tk.NewOrder("o1", time.Now())
	if o.Status != model.OrderPending {
		t.Errorf("new orders start pending, got %s", o.Status)
	}
	if !o.LimitPrice.Valid || !o.LimitPrice.Decimal.Equal(d(0.4)) {
		t.Errorf("limit price not carried: %+v", o.LimitPrice)
	}
	if o.MaxSlippage.Valid {
		t.Error("limit order should not carry max_slippage")
	}
}
