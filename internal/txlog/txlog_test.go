package txlog_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auctionhouse/internal/item"
	"github.com/jensholdgaard/auctionhouse/internal/store"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

func newTestLog(t *testing.T) (*txlog.Log, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	entries, err := store.Open[txlog.Transaction](context.Background(), txlog.CollectionName,
		backend, store.JSONCodec[txlog.Transaction]{}, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = entries.Close() })
	return txlog.New(entries, slog.Default(), noop.NewTracerProvider()), backend
}

func TestLog_AppendAndListByPlayer(t *testing.T) {
	ctx := context.Background()
	l, backend := newTestLog(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(100)
	entries := []txlog.Transaction{
		{ID: "t1", AuctionID: "a1", Seller: "alice", Buyer: "bob", Item: item.Stack{Type: "STONE", Amount: 1}, FinalPrice: &price, Status: txlog.Sold, Timestamp: base},
		{ID: "t2", AuctionID: "a2", Seller: "alice", Item: item.Stack{Type: "DIRT", Amount: 1}, Status: txlog.Expired, Timestamp: base.Add(time.Hour)},
		{ID: "t3", AuctionID: "a3", Seller: "carol", Item: item.Stack{Type: "SAND", Amount: 1}, Status: txlog.Cancelled, Timestamp: base.Add(2 * time.Hour)},
	}
	for _, tx := range entries {
		require.NoError(t, l.Append(ctx, tx))
	}
	assert.Equal(t, 3, backend.Saves(txlog.CollectionName))

	tests := []struct {
		name   string
		player string
		limit  int
		offset int
		want   []string
	}{
		{name: "seller sees all own, newest first", player: "alice", want: []string{"t2", "t1"}},
		{name: "buyer sees purchase", player: "bob", want: []string{"t1"}},
		{name: "limit applies", player: "alice", limit: 1, want: []string{"t2"}},
		{name: "offset skips newest", player: "alice", limit: 1, offset: 1, want: []string{"t1"}},
		{name: "offset past end", player: "alice", offset: 5, want: []string{}},
		{name: "stranger sees nothing", player: "dave", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.ListByPlayer(ctx, tt.player, tt.limit, tt.offset)
			ids := make([]string, 0, len(got))
			for _, tx := range got {
				ids = append(ids, tx.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestLog_AppendRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)

	tx := txlog.Transaction{ID: "t1", Seller: "alice", Status: txlog.Expired}
	require.NoError(t, l.Append(ctx, tx))

	err := l.Append(ctx, tx)
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestLog_History(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(10)
	for i := range 5 {
		buyer := ""
		if i%2 == 0 {
			buyer = "bob"
		}
		require.NoError(t, l.Append(ctx, txlog.Transaction{
			ID:         fmt.Sprintf("t%d", i),
			Seller:     "alice",
			Buyer:      buyer,
			FinalPrice: &price,
			Status:     txlog.Sold,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	first := l.History(ctx, "alice", 1, 2)
	assert.Equal(t, []string{"t4", "t3"}, txIDs(first.Transactions))
	assert.True(t, first.HasNext)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.Size)

	last := l.History(ctx, "alice", 3, 2)
	assert.Equal(t, []string{"t0"}, txIDs(last.Transactions))
	assert.False(t, last.HasNext)

	buyer := l.History(ctx, "bob", 1, 10)
	assert.Equal(t, []string{"t4", "t2", "t0"}, txIDs(buyer.Transactions))
	assert.False(t, buyer.HasNext)

	defaults := l.History(ctx, "alice", 0, 0)
	assert.Equal(t, 1, defaults.Page)
	assert.Equal(t, txlog.DefaultHistorySize, defaults.Size)
	assert.Len(t, defaults.Transactions, 5)
}

func txIDs(txs []txlog.Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}
