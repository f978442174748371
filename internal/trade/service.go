// Package trade provides the HTTP handlers for submitting and managing
// orders, querying markets and portfolios, and administering markets. Every
// handler delegates to the engine; none touches the store directly.
//
// All monetary values use shopspring/decimal, never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/binary-exchange/internal/auth"
	"github.com/atmx/binary-exchange/internal/engine"
	"github.com/atmx/binary-exchange/internal/model"
	"github.com/atmx/binary-exchange/internal/order"
	"github.com/atmx/binary-exchange/internal/store"
)

// Service exposes the engine over HTTP.
type Service struct {
	engine *engine.Engine
	faucet decimal.Decimal
}

// NewService creates a service over e. A positive faucet enables
// self-service credits of that amount.
func NewService(e *engine.Engine, faucet decimal.Decimal) *Service {
	return &Service{engine: e, faucet: faucet}
}

// --- Request/Response types ---

// StatusRequest is the JSON body for a market status change.
type StatusRequest struct {
	Status  model.MarketStatus `json:"status"`
	Outcome model.Outcome      `json:"outcome,omitempty"`
}

// CreditRequest is the JSON body for an admin balance credit.
type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// --- Order handlers ---

// SubmitOrder handles POST /api/v1/orders. Filled orders answer 200,
// pending limit orders 202.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req order.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.SubmitOrder(r.Context(), id.UserID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == model.OrderPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ListOrders handles GET /api/v1/orders?status=pending
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	status := model.OrderStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.OrderPending, model.OrderFilled, model.OrderCancelled, model.OrderExpired:
	default:
		writeErr(w, order.Reject(order.CodeValidation, "unknown order status %q", status))
		return
	}
	orders, err := s.engine.Orders(r.Context(), id.UserID, status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	o, err := s.engine.Order(r.Context(), id.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	o, err := s.engine.CancelOrder(r.Context(), id.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- Market queries ---

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.engine.Markets(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Market(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetQuote handles GET /api/v1/markets/{marketID}/quote
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.engine.Quote(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetTrades handles GET /api/v1/markets/{marketID}/trades
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.engine.Trades(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// --- Account queries ---

// GetPositions handles GET /api/v1/positions
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	p, err := s.engine.Portfolio(r.Context(), id.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetBalance handles GET /api/v1/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	b, err := s.engine.Balance(r.Context(), id.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Faucet handles POST /api/v1/faucet, crediting the caller the configured
// amount.
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	if !s.faucet.IsPositive() {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "FAUCET_DISABLED", Message: "faucet is disabled"})
		return
	}
	id, _ := auth.FromContext(r.Context())
	b, err := s.engine.Credit(r.Context(), id.UserID, s.faucet)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- Admin handlers ---

// CreateMarket handles POST /admin/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var nm engine.NewMarket
	if !decode(w, r, &nm) {
		return
	}
	m, err := s.engine.CreateMarket(r.Context(), nm)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// SetMarketStatus handles POST /admin/markets/{marketID}/status
func (s *Service) SetMarketStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.engine.SetMarketStatus(r.Context(), chi.URLParam(r, "marketID"), req.Status, req.Outcome)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetFees handles GET /admin/markets/{marketID}/fees
func (s *Service) GetFees(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Fees(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CreditBalance handles POST /admin/balances/{userID}/credit
func (s *Service) CreditBalance(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := s.engine.Credit(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- helpers ---

// decode reads a JSON body. Unknown fields, such as a client-chosen user
// id or execution price, are a validation error.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErr(w, order.Reject(order.CodeValidation, "invalid request body: %v", err))
		return false
	}
	return true
}

// StatusFor maps a rejection code to its HTTP status.
func StatusFor(code order.Code) int {
	switch code {
	case order.CodeValidation:
		return http.StatusBadRequest
	case order.CodeMarketNotFound, order.CodeOrderNotFound:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func writeErr(w http.ResponseWriter, err error) {
	if rej, ok := order.AsRejection(err); ok {
		writeJSON(w, StatusFor(rej.Code), ErrorResponse{Code: string(rej.Code), Message: rej.Message})
		return
	}
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{Code: "MARKET_EXISTS", Message: "market already exists"})
	case errors.Is(err, engine.ErrLedgerUnavailable):
		// The cause is logged by the engine; clients only learn to retry.
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Code:      "LEDGER_UNAVAILABLE",
			Message:   "ledger temporarily unavailable; the request was not applied",
			Retryable: true,
		})
	default:
		slog.Error("unhandled error", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
