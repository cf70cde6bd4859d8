package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"

	"github.com/jensholdgaard/auctionhouse/internal/auction"
)

func filterOf(r *http.Request) auction.Filter {
	q := r.URL.Query()
	return auction.Filter{
		Category: auction.Category(q.Get("category")),
		Search:   q.Get("q"),
	}
}

func (h *Handler) listAuctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, size, err := pageParams(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	p, err := h.auctions.ListActive(ctx, auction.ListQuery{
		Filter: filterOf(r),
		Sort:   auction.SortOrder(r.URL.Query().Get("sort")),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, p)
}

func (h *Handler) countAuctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.auctions.CountActive(ctx, filterOf(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createAuctionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	duration, err := parseDuration(req.Duration)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	a, err := h.auctions.Create(ctx, auction.CreateParams{
		Seller:       req.Seller,
		Item:         req.Item,
		Price:        *req.Price,
		BuyNowPrice:  req.BuyNowPrice,
		ReservePrice: req.ReservePrice,
		Duration:     duration,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, a)
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.auctions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, a)
}

func (h *Handler) purchaseAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req purchaseRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	a, err := h.auctions.Purchase(ctx, chi.URLParam(r, "id"), req.Buyer)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, a)
}

func (h *Handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	a, err := h.auctions.Cancel(ctx, chi.URLParam(r, "id"), req.Actor, req.Admin)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, a)
}

// pageParams reads page and size, defaulting size to the listing page size.
func pageParams(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(r, "size", auction.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func (h *Handler) playerAuctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, size, err := pageParams(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, h.auctions.ListBySeller(ctx, chi.URLParam(r, "player"), page, size))
}

func (h *Handler) playerHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, size, err := pageParams(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, h.auctions.ListHistory(ctx, chi.URLParam(r, "player"), page, size))
}

func (h *Handler) mailboxPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, size, err := pageParams(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, h.mailbox.PendingPage(ctx, chi.URLParam(r, "player"), page, size))
}

func (h *Handler) mailboxClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.mailbox.Claim(ctx, chi.URLParam(r, "player"), chi.URLParam(r, "item"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, m)
}

// mailboxClaimAll reports partial success as 200 with the failures listed.
func (h *Handler) mailboxClaimAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimed, err := h.mailbox.ClaimAll(ctx, chi.URLParam(r, "player"))
	if err != nil && len(claimed) == 0 {
		h.writeError(ctx, w, err)
		return
	}
	resp := claimAllResponse{Claimed: claimed}
	for _, e := range multierr.Errors(err) {
		resp.Failed = append(resp.Failed, e.Error())
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	player := chi.URLParam(r, "player")
	bal, err := h.economy.Balance(ctx, player)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, balanceResponse{
		PlayerID:  player,
		Balance:   bal,
		Formatted: h.economy.Format(bal),
	})
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit", defaultTxLimit)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, h.txlog.ListByPlayer(ctx, chi.URLParam(r, "player"), min(limit, maxTxLimit), 0))
}
