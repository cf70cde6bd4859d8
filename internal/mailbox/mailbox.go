// Package mailbox holds deliveries waiting for a player: items returned from
// expired or cancelled listings, purchased items and sale proceeds. Claims
// settle each delivery at most once.
package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auctionhouse/internal/item"
)

// CollectionName is the snapshot name of the mailbox collection.
const CollectionName = "mailbox"

var (
	ErrNotFound       = errors.New("mailbox item not found")
	ErrNotOwner       = errors.New("mailbox item belongs to another player")
	ErrAlreadyClaimed = errors.New("mailbox item already claimed")
	ErrExpired        = errors.New("mailbox item expired")
	ErrInventoryFull  = errors.New("inventory full")
	ErrNoInventory    = errors.New("no inventory configured for item delivery")
	ErrDeliveryFailed = errors.New("delivery failed after claim")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrEmpty          = errors.New("mailbox empty")
)

// Kind says what a mailbox item delivers.
type Kind string

const (
	KindItem  Kind = "ITEM"
	KindMoney Kind = "MONEY"
)

// Item is one pending delivery. Exactly one of Item and Amount is meaningful,
// chosen by Kind. Claimed only ever goes from false to true.
type Item struct {
	ID               string          `json:"id"`
	PlayerID         string          `json:"player_id"`
	Kind             Kind            `json:"kind"`
	Item             *item.Stack     `json:"item,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason"`
	RelatedAuctionID string          `json:"related_auction_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
	Claimed          bool            `json:"claimed"`
	ClaimedAt        *time.Time      `json:"claimed_at,omitempty"`
	Version          int64           `json:"version"`
}

func (i Item) RecordID() string     { return i.ID }
func (i Item) RecordVersion() int64 { return i.Version }
func (i Item) WithVersion(v int64) Item {
	i.Version = v
	return i
}

// Expired reports whether the item passed its expiry at now.
func (i Item) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Pending reports whether the item can still be claimed at now.
func (i Item) Pending(now time.Time) bool {
	return !i.Claimed && !i.Expired(now)
}

// Inventory receives claimed items. Give is called only after the claim has
// been committed.
type Inventory interface {
	HasSpace(ctx context.Context, playerID string, stack item.Stack) (bool, error)
	Give(ctx context.Context, playerID string, stack item.Stack) error
}

// Handoff is the Inventory used when the caller takes the item itself, as
// the HTTP API does by returning it in the response.
type Handoff struct{}

func (Handoff) HasSpace(context.Context, string, item.Stack) (bool, error) { return true, nil }
func (Handoff) Give(context.Context, string, item.Stack) error             { return nil }
