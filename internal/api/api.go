// Package api serves the auction house over JSON HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/item"
	"github.com/jensholdgaard/auctionhouse/internal/mailbox"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 500
)

// Handler holds the services behind the /v1 routes.
type Handler struct {
	auctions *auction.Service
	mailbox  *mailbox.Service
	economy  economy.Economy
	txlog    *txlog.Log
	logger   *slog.Logger
}

// New returns a Handler.
func New(auctions *auction.Service, mail *mailbox.Service, econ economy.Economy, txs *txlog.Log, logger *slog.Logger) *Handler {
	return &Handler{
		auctions: auctions,
		mailbox:  mail,
		economy:  econ,
		txlog:    txs,
		logger:   logger,
	}
}

// Routes returns the versioned API router, to be mounted at /v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Route("/auctions", func(r chi.Router) {
		r.Get("/", h.listAuctions)
		r.Post("/", h.createAuction)
		r.Get("/count", h.countAuctions)
		r.Get("/{id}", h.getAuction)
		r.Post("/{id}/purchase", h.purchaseAuction)
		r.Post("/{id}/cancel", h.cancelAuction)
	})

	r.Route("/players/{player}", func(r chi.Router) {
		r.Get("/auctions", h.playerAuctions)
		r.Get("/history", h.playerHistory)
		r.Get("/mailbox", h.mailboxPending)
		r.Post("/mailbox/claim-all", h.mailboxClaimAll)
		r.Post("/mailbox/{item}/claim", h.mailboxClaim)
		r.Get("/balance", h.balance)
		r.Get("/transactions", h.transactions)
	})
	return r
}

type createAuctionRequest struct {
	Seller       string           `json:"seller" validate:"required"`
	Item         item.Stack       `json:"item"`
	Price        *decimal.Decimal `json:"price" validate:"required"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price,omitempty"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	Duration     string           `json:"duration,omitempty"`
}

type purchaseRequest struct {
	Buyer string `json:"buyer" validate:"required"`
}

type cancelRequest struct {
	Actor string `json:"actor" validate:"required"`
	Admin bool   `json:"admin"`
}

type countResponse struct {
	Count int `json:"count"`
}

type claimAllResponse struct {
	Claimed []mailbox.Item `json:"claimed"`
	Failed  []string       `json:"failed,omitempty"`
}

type balanceResponse struct {
	PlayerID  string          `json:"player_id"`
	Balance   decimal.Decimal `json:"balance"`
	Formatted string          `json:"formatted"`
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &validationError{fields: map[string]string{"duration": "is invalid"}}
	}
	return d, nil
}
