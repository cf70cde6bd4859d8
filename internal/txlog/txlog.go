// Package txlog is the append-only audit trail of resolved auctions.
package txlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionhouse/internal/item"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

// CollectionName is the snapshot name of the transaction log.
const CollectionName = "transactions"

// History page sizes.
const (
	DefaultHistorySize = 28
	MaxHistorySize     = 100
)

// Status identifies how an auction was resolved.
type Status string

const (
	Sold      Status = "SOLD"
	Expired   Status = "EXPIRED"
	Cancelled Status = "CANCELLED"
)

// Transaction is written once when an auction leaves ACTIVE and never changes.
type Transaction struct {
	ID         string           `json:"transaction_id"`
	AuctionID  string           `json:"auction_id"`
	Seller     string           `json:"seller_uuid"`
	Buyer      string           `json:"buyer_uuid,omitempty"`
	Item       item.Stack       `json:"item_snapshot"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
	Status     Status           `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
	Details    string           `json:"details,omitempty"`
}

func (t Transaction) RecordID() string              { return t.ID }
func (t Transaction) RecordVersion() int64          { return 0 }
func (t Transaction) WithVersion(int64) Transaction { return t }

// Log appends and reads transactions.
type Log struct {
	entries *store.Collection[Transaction]
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New returns a Log over entries.
func New(entries *store.Collection[Transaction], logger *slog.Logger, tp trace.TracerProvider) *Log {
	return &Log{
		entries: entries,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/auctionhouse/internal/txlog"),
	}
}

// Append persists tx.
func (l *Log) Append(ctx context.Context, tx Transaction) error {
	ctx, span := l.tracer.Start(ctx, "Log.Append",
		trace.WithAttributes(
			attribute.String("transaction_id", tx.ID),
			attribute.String("status", string(tx.Status)),
		),
	)
	defer span.End()

	if err := l.entries.Insert(ctx, tx); err != nil {
		return fmt.Errorf("appending transaction %s: %w", tx.ID, err)
	}

	l.logger.DebugContext(ctx, "transaction recorded",
		slog.String("transaction_id", tx.ID),
		slog.String("auction_id", tx.AuctionID),
		slog.String("status", string(tx.Status)),
	)
	return nil
}

// ListByPlayer returns up to limit transactions where playerID was seller or
// buyer, newest first, skipping the first offset. A limit of zero or less
// returns all of them.
func (l *Log) ListByPlayer(ctx context.Context, playerID string, limit, offset int) []Transaction {
	_, span := l.tracer.Start(ctx, "Log.ListByPlayer",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	return l.entries.Query(store.Query[Transaction]{
		Filter:  involves(playerID),
		Compare: newestFirst,
		Offset:  offset,
		Limit:   limit,
	})
}

// HistoryPage is one page of a player's transactions.
type HistoryPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	Size         int           `json:"size"`
	HasNext      bool          `json:"has_next"`
}

// History returns a 1-based page of playerID's transactions as seller or
// buyer, newest first. One extra row is read to set HasNext.
func (l *Log) History(ctx context.Context, playerID string, page, size int) HistoryPage {
	page, size, offset := store.Window(page, size, DefaultHistorySize, MaxHistorySize)
	rows := l.ListByPlayer(ctx, playerID, size+1, offset)
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	return HistoryPage{Transactions: rows, Page: page, Size: size, HasNext: hasNext}
}

func involves(playerID string) func(Transaction) bool {
	return func(t Transaction) bool {
		return t.Seller == playerID || t.Buyer == playerID
	}
}

func newestFirst(a, b Transaction) int { return b.Timestamp.Compare(a.Timestamp) }
