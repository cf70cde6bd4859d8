package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auctionhouse/internal/api"
	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/mailbox"
	"github.com/jensholdgaard/auctionhouse/internal/store"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type env struct {
	server   *httptest.Server
	auctions *auction.Service
	ledger   *economy.Ledger
	clock    *clock.Manual
}

func open[T store.Record[T]](t *testing.T, backend store.Backend, name string) *store.Collection[T] {
	t.Helper()
	c, err := store.Open[T](context.Background(), name, backend, store.JSONCodec[T]{}, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newEnv(t *testing.T) *env {
	t.Helper()
	backend := store.NewMemoryBackend()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tp := noop.NewTracerProvider()
	clk := clock.NewManual(t0)

	ledger := economy.NewLedger(open[economy.Account](t, backend, economy.CollectionName),
		config.EconomyConfig{CurrencySymbol: "$"}, logger, tp, clk)
	mail := mailbox.NewService(open[mailbox.Item](t, backend, mailbox.CollectionName), ledger, mailbox.Handoff{},
		config.MailboxConfig{RetentionDays: 30, ClaimAllLimit: 100}, logger, tp, clk)
	txs := txlog.New(open[txlog.Transaction](t, backend, txlog.CollectionName), logger, tp)
	auctions := auction.NewService(open[auction.Auction](t, backend, auction.CollectionName), ledger, mail, txs, nil,
		config.AuctionConfig{
			MinPrice:             1,
			MaxListingsPerPlayer: 2,
			DefaultDuration:      24 * time.Hour,
			MaxDuration:          7 * 24 * time.Hour,
			SaleFeePercent:       0,
			SessionTTL:           time.Minute,
		}, logger, tp, clk)

	h := api.New(auctions, mail, ledger, txs, logger)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &env{server: srv, auctions: auctions, ledger: ledger, clock: clk}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (e *env) create(t *testing.T, seller, itemType string, price int) auction.Auction {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/auctions", map[string]any{
		"seller": seller,
		"item":   map[string]any{"type": itemType, "amount": 1},
		"price":  price,
	})
	require.Equal(t, http.StatusCreated, status, body.Error.Message)
	return decode[auction.Auction](t, body.Data)
}

func TestAPI_CreateAndGet(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "alice", "DIAMOND_SWORD", 100)
	assert.Equal(t, auction.StatusActive, a.Status)
	assert.True(t, a.Price.Equal(decimal.NewFromInt(100)))

	status, body := e.do(t, http.MethodGet, "/auctions/"+a.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, a.ID, decode[auction.Auction](t, body.Data).ID)

	status, body = e.do(t, http.MethodGet, "/auctions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestAPI_CreateValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantField  string
	}{
		{
			name:       "missing seller",
			body:       map[string]any{"item": map[string]any{"type": "STONE", "amount": 1}, "price": 5},
			wantStatus: http.StatusBadRequest,
			wantField:  "seller",
		},
		{
			name:       "missing price",
			body:       map[string]any{"seller": "alice", "item": map[string]any{"type": "STONE", "amount": 1}},
			wantStatus: http.StatusBadRequest,
			wantField:  "price",
		},
		{
			name:       "zero amount",
			body:       map[string]any{"seller": "alice", "item": map[string]any{"type": "STONE", "amount": 0}, "price": 5},
			wantStatus: http.StatusBadRequest,
			wantField:  "amount",
		},
		{
			name:       "bad duration",
			body:       map[string]any{"seller": "alice", "item": map[string]any{"type": "STONE", "amount": 1}, "price": 5, "duration": "soon"},
			wantStatus: http.StatusBadRequest,
			wantField:  "duration",
		},
		{
			name:       "below minimum price",
			body:       map[string]any{"seller": "alice", "item": map[string]any{"type": "STONE", "amount": 1}, "price": "0.5"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       map[string]any{"seller": "alice", "item": map[string]any{"type": "STONE", "amount": 1}, "price": 5, "colour": "red"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/auctions", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, "validation", body.Error.Code)
			if tt.wantField != "" {
				assert.Contains(t, body.Error.Details, tt.wantField)
			}
		})
	}
}

func TestAPI_ListingLimit(t *testing.T) {
	e := newEnv(t)
	e.create(t, "alice", "STONE", 5)
	e.create(t, "alice", "DIRT", 5)

	status, body := e.do(t, http.MethodPost, "/auctions", map[string]any{
		"seller": "alice",
		"item":   map[string]any{"type": "SAND", "amount": 1},
		"price":  5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "unprocessable", body.Error.Code)
}

func TestAPI_PurchaseFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, "alice", "DIAMOND_SWORD", 100)

	status, body := e.do(t, http.MethodPost, "/auctions/"+a.ID+"/purchase", map[string]any{"buyer": "bob"})
	assert.Equal(t, http.StatusUnprocessableEntity, status, "bob has no money yet")
	assert.Equal(t, "unprocessable", body.Error.Code)

	status, _ = e.do(t, http.MethodPost, "/auctions/"+a.ID+"/purchase", map[string]any{"buyer": "alice"})
	assert.Equal(t, http.StatusForbidden, status)

	require.NoError(t, e.ledger.Deposit(ctx, "bob", decimal.NewFromInt(150), "test funding"))
	status, body = e.do(t, http.MethodPost, "/auctions/"+a.ID+"/purchase", map[string]any{"buyer": "bob"})
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	assert.Equal(t, auction.StatusFinished, decode[auction.Auction](t, body.Data).Status)

	status, _ = e.do(t, http.MethodPost, "/auctions/"+a.ID+"/purchase", map[string]any{"buyer": "bob"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = e.do(t, http.MethodGet, "/players/bob/balance", nil)
	require.Equal(t, http.StatusOK, status)
	bal := decode[map[string]any](t, body.Data)
	assert.Equal(t, "$50.00", bal["formatted"])

	// bob collects the sword, alice collects the proceeds.
	status, body = e.do(t, http.MethodGet, "/players/bob/mailbox", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[struct {
		Items []mailbox.Item `json:"items"`
		Total int            `json:"total"`
	}](t, body.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, mailbox.KindItem, page.Items[0].Kind)

	status, _ = e.do(t, http.MethodPost, "/players/alice/mailbox/"+page.Items[0].ID+"/claim", nil)
	assert.Equal(t, http.StatusForbidden, status, "alice cannot claim bob's item")

	status, body = e.do(t, http.MethodPost, "/players/bob/mailbox/"+page.Items[0].ID+"/claim", nil)
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	claimed := decode[mailbox.Item](t, body.Data)
	require.NotNil(t, claimed.Item)
	assert.Equal(t, "DIAMOND_SWORD", claimed.Item.Type)

	status, _ = e.do(t, http.MethodPost, "/players/bob/mailbox/"+page.Items[0].ID+"/claim", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = e.do(t, http.MethodPost, "/players/alice/mailbox/claim-all", nil)
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	all := decode[struct {
		Claimed []mailbox.Item `json:"claimed"`
		Failed  []string       `json:"failed"`
	}](t, body.Data)
	require.Len(t, all.Claimed, 1)
	assert.Empty(t, all.Failed)

	status, body = e.do(t, http.MethodPost, "/players/alice/mailbox/claim-all", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.Error.Code)

	balance, err := e.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "alice balance %s", balance)

	status, body = e.do(t, http.MethodGet, "/players/alice/transactions", nil)
	require.Equal(t, http.StatusOK, status)
	txs := decode[[]txlog.Transaction](t, body.Data)
	require.Len(t, txs, 1)
	assert.Equal(t, txlog.Sold, txs[0].Status)
	assert.Equal(t, "bob", txs[0].Buyer)

	status, body = e.do(t, http.MethodGet, "/players/bob/history", nil)
	require.Equal(t, http.StatusOK, status)
	bought := decode[txlog.HistoryPage](t, body.Data)
	require.Len(t, bought.Transactions, 1, "buyer sees the purchase")
	assert.Equal(t, a.ID, bought.Transactions[0].AuctionID)
	assert.False(t, bought.HasNext)
}

func TestAPI_Cancel(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "alice", "STONE", 5)

	status, _ := e.do(t, http.MethodPost, "/auctions/"+a.ID+"/cancel", map[string]any{"actor": "bob"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := e.do(t, http.MethodPost, "/auctions/"+a.ID+"/cancel", map[string]any{"actor": "alice"})
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	assert.Equal(t, auction.StatusCancelled, decode[auction.Auction](t, body.Data).Status)

	status, body = e.do(t, http.MethodGet, "/players/alice/history", nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[txlog.HistoryPage](t, body.Data)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, a.ID, history.Transactions[0].AuctionID)
	assert.Equal(t, txlog.Cancelled, history.Transactions[0].Status)

	status, body = e.do(t, http.MethodGet, "/players/alice/auctions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[auction.Page](t, body.Data).Auctions, 1)
}

func TestAPI_MailboxPagingIsNormalized(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "alice", "STONE", 5)
	status, body := e.do(t, http.MethodPost, "/auctions/"+a.ID+"/cancel", map[string]any{"actor": "alice"})
	require.Equal(t, http.StatusOK, status, body.Error.Message)

	status, body = e.do(t, http.MethodGet, "/players/alice/mailbox?size=1000", nil)
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	page := decode[mailbox.Page](t, body.Data)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, mailbox.MaxPageSize, page.Size)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Total)
	assert.False(t, page.HasNext)

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/players/alice/mailbox?page=%d&size=10", math.MaxInt), nil)
	require.Equal(t, http.StatusOK, status, body.Error.Message)
	page = decode[mailbox.Page](t, body.Data)
	assert.Equal(t, math.MaxInt/10-1, page.Page)
	assert.Equal(t, 10, page.Size)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)

	status, _ = e.do(t, http.MethodGet, "/players/alice/mailbox?size=0", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_ListAndCount(t *testing.T) {
	e := newEnv(t)
	e.create(t, "alice", "DIAMOND_SWORD", 300)
	e.clock.Advance(time.Minute)
	e.create(t, "bob", "IRON_HELMET", 50)
	e.clock.Advance(time.Minute)
	e.create(t, "carol", "OAK_LOG", 20)

	tests := []struct {
		name      string
		query     string
		wantTypes []string
		wantCount int
	}{
		{name: "all by price", query: "?sort=price_asc", wantTypes: []string{"OAK_LOG", "IRON_HELMET", "DIAMOND_SWORD"}, wantCount: 3},
		{name: "weapons", query: "?category=weapons", wantTypes: []string{"DIAMOND_SWORD"}, wantCount: 1},
		{name: "search", query: "?q=helmet", wantTypes: []string{"IRON_HELMET"}, wantCount: 1},
		{name: "paged", query: "?sort=newest&size=2&page=2", wantTypes: []string{"DIAMOND_SWORD"}, wantCount: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodGet, "/auctions"+tt.query, nil)
			require.Equal(t, http.StatusOK, status, body.Error.Message)
			page := decode[auction.Page](t, body.Data)
			var types []string
			for _, a := range page.Auctions {
				types = append(types, a.Item.Type)
			}
			assert.Equal(t, tt.wantTypes, types)

			status, body = e.do(t, http.MethodGet, "/auctions/count"+tt.query, nil)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.wantCount, decode[struct {
				Count int `json:"count"`
			}](t, body.Data).Count)
		})
	}
}

func TestAPI_BadQuery(t *testing.T) {
	e := newEnv(t)

	for _, q := range []string{"?sort=cheapest", "?category=food", "?page=0", "?size=abc"} {
		status, body := e.do(t, http.MethodGet, "/auctions"+q, nil)
		assert.Equal(t, http.StatusBadRequest, status, q)
		assert.Equal(t, "validation", body.Error.Code, q)
	}
}

func TestAPI_Expired(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "alice", "STONE", 5)
	require.NoError(t, e.ledger.Deposit(context.Background(), "bob", decimal.NewFromInt(10), "test funding"))

	e.clock.Advance(25 * time.Hour)
	status, body := e.do(t, http.MethodPost, "/auctions/"+a.ID+"/purchase", map[string]any{"buyer": "bob"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body.Error.Code)

	n, err := e.auctions.SweepExpired(context.Background(), e.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAPI_NotFoundRoute(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
