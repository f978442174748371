package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/auth"
	"github.com/atmx/binary-exchange/internal/engine"
	"github.com/atmx/binary-exchange/internal/events"
	"github.com/atmx/binary-exchange/internal/model"
	"github.com/atmx/binary-exchange/internal/store"
	"github.com/atmx/binary-exchange/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

const adminToken = "admin-secret"

// newTestEnv wires a Service over an in-memory store behind the same
// routers the server mounts.
func newTestEnv(t *testing.T, faucet float64) (*engine.Engine, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	eng := engine.New(ms, engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := trade.NewService(eng, d(faucet))

	key, err := auth.ParseKey("bot", auth.HashKey("read-only-key"), []string{"read"})
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/api/v1", svc.APIRoutes(auth.NewAuthenticator([]auth.Key{key}), nil))
	r.Mount("/admin", svc.AdminRoutes(adminToken))
	return eng, r
}

// seedMarket creates a test market through the engine.
func seedMarket(t *testing.T, eng *engine.Engine, id string, yes, tradingFee float64) {
	t.Helper()
	_, err := eng.CreateMarket(context.Background(), engine.NewMarket{
		ID:         id,
		Question:   "Will it rain in " + id + "?",
		Category:   "weather",
		YesPrice:   d(yes),
		TradingFee: d(tradingFee),
	})
	if err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
}

func fund(t *testing.T, eng *engine.Engine, user string, amount float64) {
	t.Helper()
	if _, err := eng.Credit(context.Background(), user, d(amount)); err != nil {
		t.Fatalf("failed to fund %s: %v", user, err)
	}
}

func do(t *testing.T, router chi.Router, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.SessionHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type orderResult struct {
	Status         string           `json:"status"`
	OrderID        string           `json:"order_id"`
	TradeID        string           `json:"trade_id"`
	ExecutionPrice *decimal.Decimal `json:"execution_price"`
	Shares         *decimal.Decimal `json:"shares"`
	FeeAmount      *decimal.Decimal `json:"fee_amount"`
	Reason         string           `json:"reason"`
}

// --- Order submission tests ---

func TestSubmitOrder_MarketBuy(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.5, 0.02)
	fund(t, eng, "user1", 100)

	w := do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "100",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[orderResult](t, w)
	if res.Status != "filled" || res.TradeID == "" {
		t.Fatalf("expected a filled trade, got %+v", res)
	}
	if !res.ExecutionPrice.Equal(d(0.5)) || !res.Shares.Equal(d(196)) || !res.FeeAmount.Equal(d(2)) {
		t.Errorf("unexpected fill: price=%s shares=%s fee=%s", res.ExecutionPrice, res.Shares, res.FeeAmount)
	}

	w = do(t, router, "GET", "/api/v1/balance", "user1", nil)
	bal := decodeBody[model.UserBalance](t, w)
	if !bal.Balance.IsZero() {
		t.Errorf("expected balance 0, got %s", bal.Balance)
	}
}

func TestSubmitOrder_PendingLimit(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.6, 0.02)
	fund(t, eng, "user1", 100)

	w := do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "m1", "type": "limit", "side": "buy", "outcome": "yes",
		"amount": "50", "limit_price": "0.5",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[orderResult](t, w)
	if res.Status != "pending" || res.Reason == "" || res.ExecutionPrice != nil {
		t.Errorf("unexpected pending result: %+v", res)
	}

	w = do(t, router, "GET", "/api/v1/orders?status=pending", "user1", nil)
	orders := decodeBody[[]model.Order](t, w)
	if len(orders) != 1 || orders[0].ID != res.OrderID {
		t.Fatalf("expected the pending order listed, got %+v", orders)
	}

	w = do(t, router, "DELETE", "/api/v1/orders/"+res.OrderID, "user1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, "DELETE", "/api/v1/orders/"+res.OrderID, "user1", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel: expected 409, got %d", w.Code)
	}
}

func TestSubmitOrder_ErrorMapping(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.5, 0.02)
	fund(t, eng, "user1", 10)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", `{"market_id":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"client user id", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "1", "user_id": "victim"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"client price", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "1", "execution_price": "0.01"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero amount", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "0"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing limit", map[string]any{"market_id": "m1", "type": "limit", "side": "buy", "outcome": "yes", "amount": "1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown market", map[string]any{"market_id": "nope", "type": "market", "side": "buy", "outcome": "yes", "amount": "1"}, http.StatusNotFound, "MARKET_NOT_FOUND"},
		{"insufficient balance", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "11"}, http.StatusConflict, "INSUFFICIENT_BALANCE"},
		{"insufficient shares", map[string]any{"market_id": "m1", "type": "market", "side": "sell", "outcome": "no", "amount": "1"}, http.StatusConflict, "INSUFFICIENT_SHARES"},
		{"slippage", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "5", "max_slippage": "0.01"}, http.StatusConflict, "SLIPPAGE_EXCEEDED"},
		{"price bound", map[string]any{"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "5", "max_price": "0.4"}, http.StatusConflict, "PRICE_BOUND_VIOLATED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/orders", "user1", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			resp := decodeBody[trade.ErrorResponse](t, w)
			if resp.Code != tt.code || resp.Message == "" {
				t.Errorf("expected code %s with message, got %+v", tt.code, resp)
			}
		})
	}

	bal, _ := eng.Balance(context.Background(), "user1")
	if !bal.Balance.Equal(d(10)) {
		t.Errorf("rejections moved money: balance %s", bal.Balance)
	}
}

func TestSubmitOrder_RequiresTradeScope(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.5, 0)

	req := httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set(auth.APIKeyHeader, "read-only-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("read-only key: expected 403, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/markets/m1/quote", nil)
	req.Header.Set(auth.APIKeyHeader, "read-only-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("read-only key on quote: expected 200, got %d", w.Code)
	}

	w = do(t, router, "GET", "/api/v1/markets", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", w.Code)
	}
}

func TestGetOrder_OtherUserNotFound(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.5, 0)
	fund(t, eng, "user1", 10)

	w := do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "1",
	})
	res := decodeBody[orderResult](t, w)

	if w := do(t, router, "GET", "/api/v1/orders/"+res.OrderID, "user1", nil); w.Code != http.StatusOK {
		t.Errorf("owner: expected 200, got %d", w.Code)
	}
	if w := do(t, router, "GET", "/api/v1/orders/"+res.OrderID, "user2", nil); w.Code != http.StatusNotFound {
		t.Errorf("other user: expected 404, got %d", w.Code)
	}
}

// --- Query tests ---

func TestGetPositions_MarkedToMarket(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.5, 0)
	fund(t, eng, "user1", 20)

	do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "m1", "type": "market", "side": "buy", "outcome": "yes", "amount": "10",
	})
	w := do(t, router, "GET", "/api/v1/positions", "user1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	p := decodeBody[engine.Portfolio](t, w)
	if len(p.Positions) != 1 || !p.Positions[0].Shares.Equal(d(20)) {
		t.Fatalf("expected one 20-share position, got %+v", p.Positions)
	}
	if !p.UnrealizedPnL.Equal(d(0.4)) {
		t.Errorf("expected unrealized P&L 0.4 at yes=0.52, got %s", p.UnrealizedPnL)
	}
}

func TestGetPositions_Empty(t *testing.T) {
	_, router := newTestEnv(t, 0)
	w := do(t, router, "GET", "/api/v1/positions", "nobody", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	p := decodeBody[engine.Portfolio](t, w)
	if len(p.Positions) != 0 || !p.Balance.IsZero() {
		t.Errorf("expected an empty portfolio, got %+v", p)
	}
}

func TestMarketQueries(t *testing.T) {
	eng, router := newTestEnv(t, 0)
	seedMarket(t, eng, "m1", 0.3, 0)

	w := do(t, router, "GET", "/api/v1/markets", "user1", nil)
	if markets := decodeBody[[]model.Market](t, w); len(markets) != 1 {
		t.Errorf("expected 1 market, got %d", len(markets))
	}
	w = do(t, router, "GET", "/api/v1/markets/m1/quote", "user1", nil)
	q := decodeBody[engine.QuoteView](t, w)
	if !q.Quote.Yes.Equal(d(0.3)) || !q.Quote.No.Equal(d(0.7)) {
		t.Errorf("unexpected quote %+v", q.Quote)
	}
	if w := do(t, router, "GET", "/api/v1/markets/missing/trades", "user1", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing market trades: expected 404, got %d", w.Code)
	}
}

func TestFaucet(t *testing.T) {
	_, router := newTestEnv(t, 0)
	if w := do(t, router, "POST", "/api/v1/faucet", "user1", nil); w.Code != http.StatusNotFound {
		t.Errorf("disabled faucet: expected 404, got %d", w.Code)
	}

	_, router = newTestEnv(t, 25)
	do(t, router, "POST", "/api/v1/faucet", "user1", nil)
	w := do(t, router, "POST", "/api/v1/faucet", "user1", nil)
	bal := decodeBody[model.UserBalance](t, w)
	if !bal.Balance.Equal(d(50)) {
		t.Errorf("expected 50 after two drips, got %s", bal.Balance)
	}
}

// --- Admin tests ---

func adminDo(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdmin_MarketLifecycle(t *testing.T) {
	_, router := newTestEnv(t, 0)

	w := adminDo(t, router, "POST", "/admin/markets", map[string]any{
		"id": "rain", "question": "Rain tomorrow?", "category": "Weather", "trading_fee": "0.01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	m := decodeBody[model.Market](t, w)
	if m.Status != model.MarketActive || !m.YesPrice.Equal(d(0.5)) || m.Category != "weather" {
		t.Errorf("unexpected market %+v", m)
	}

	w = adminDo(t, router, "POST", "/admin/markets", map[string]any{"id": "rain", "question": "again"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	w = adminDo(t, router, "POST", "/admin/balances/user1/credit", map[string]any{"amount": "10"})
	if w.Code != http.StatusOK {
		t.Fatalf("credit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "rain", "type": "market", "side": "buy", "outcome": "no", "amount": "10",
	})

	w = adminDo(t, router, "GET", "/admin/markets/rain/fees", nil)
	report := decodeBody[engine.FeeReport](t, w)
	if len(report.Fees) != 1 || !report.Total.Equal(d(0.1)) {
		t.Errorf("expected one 0.1 fee, got %+v", report)
	}

	w = adminDo(t, router, "POST", "/admin/markets/rain/status", map[string]any{"status": "resolved", "outcome": "no"})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, "POST", "/api/v1/orders", "user1", map[string]any{
		"market_id": "rain", "type": "market", "side": "sell", "outcome": "no", "amount": "1",
	})
	if resp := decodeBody[trade.ErrorResponse](t, w); resp.Code != "MARKET_INACTIVE" {
		t.Errorf("trade on resolved market: expected MARKET_INACTIVE, got %+v", resp)
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	_, router := newTestEnv(t, 0)
	req := httptest.NewRequest("POST", "/admin/markets", strings.NewReader(`{"question":"q"}`))
	req.Header.Set(auth.SessionHeader, "user1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("session user on admin route: expected 401, got %d", w.Code)
	}
}

// --- WebSocket message tests ---

func TestMessageFor(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, ok := trade.MessageFor(events.Event{
		Type:     events.TypeTrade,
		MarketID: "m1",
		UserID:   "user1",
		Outcome:  "yes",
		Side:     "buy",
		YesPrice: events.Dec(d(0.56)),
		NoPrice:  events.Dec(d(0.44)),
		Amount:   events.Dec(d(100)),
		At:       at,
	})
	if !ok {
		t.Fatal("trade events should be broadcast")
	}
	if msg.Type != "quote_updated" || msg.YesPrice != "0.56" || msg.NoPrice != "0.44" || msg.Amount != "100" {
		t.Errorf("unexpected message %+v", msg)
	}

	if _, ok := trade.MessageFor(events.Event{Type: events.TypeOrderPending, MarketID: "m1", UserID: "user1"}); ok {
		t.Error("pending orders are private and must not be broadcast")
	}
}

func TestWSHub_PublishWithoutClients(t *testing.T) {
	hub := trade.NewWSHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if err := hub.Publish(ctx, events.Event{Type: events.TypeMarketCreated, MarketID: "m1"}); err != nil {
		t.Errorf("publish: %v", err)
	}
	if hub.Clients() != 0 {
		t.Errorf("expected no clients, got %d", hub.Clients())
	}
}
