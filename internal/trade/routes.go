package trade

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/binary-exchange/internal/auth"
)

// APIRoutes returns the handler mounted at /api/v1. Every route needs an
// identity; reads need the read scope and order entry the trade scope. A
// nil hub leaves /ws unrouted.
func (s *Service) APIRoutes(authn *auth.Authenticator, hub *WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(authn.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireScope(auth.ScopeRead))
		r.Get("/markets", s.ListMarkets)
		r.Get("/markets/{marketID}", s.GetMarket)
		r.Get("/markets/{marketID}/quote", s.GetQuote)
		r.Get("/markets/{marketID}/trades", s.GetTrades)
		r.Get("/orders", s.ListOrders)
		r.Get("/orders/{orderID}", s.GetOrder)
		r.Get("/positions", s.GetPositions)
		r.Get("/balance", s.GetBalance)
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireScope(auth.ScopeTrade))
		r.Post("/orders", s.SubmitOrder)
		r.Delete("/orders/{orderID}", s.CancelOrder)
		r.Post("/faucet", s.Faucet)
	})
	return r
}

// AdminRoutes returns the handler mounted at /admin, guarded by a bearer
// token.
func (s *Service) AdminRoutes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.AdminOnly(token))
	r.Post("/markets", s.CreateMarket)
	r.Post("/markets/{marketID}/status", s.SetMarketStatus)
	r.Get("/markets/{marketID}/fees", s.GetFees)
	r.Post("/balances/{userID}/credit", s.CreditBalance)
	return r
}
