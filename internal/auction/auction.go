package auction

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auctionhouse/internal/item"
)

// CollectionName is the snapshot name of the auctions collection.
const CollectionName = "auctions"

// Errors returned by auction operations.
var (
	ErrNotFound        = errors.New("auction not found")
	ErrNotActive       = errors.New("auction is not active")
	ErrEnded           = errors.New("auction has ended")
	ErrConflict        = errors.New("auction changed concurrently")
	ErrOwnAuction      = errors.New("cannot buy your own auction")
	ErrNotSeller       = errors.New("only the seller can cancel this auction")
	ErrListingLimit    = errors.New("listing limit reached")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidItem     = errors.New("invalid item")
	ErrInvalidAuction  = errors.New("invalid auction")
)

// Status is the lifecycle state of an auction. ACTIVE is the only
// non-terminal state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Auction is a listing of one item stack for sale. Values are copies; the
// auctions collection is the only place a change becomes real.
type Auction struct {
	ID           string           `json:"id"`
	Seller       string           `json:"seller"`
	Item         item.Stack       `json:"item"`
	Price        decimal.Decimal  `json:"price"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price,omitempty"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	EndAt        time.Time        `json:"end_at"`
	Status       Status           `json:"status"`
	Buyer        string           `json:"buyer,omitempty"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	Version      int64            `json:"version"`
}

func (a Auction) RecordID() string     { return a.ID }
func (a Auction) RecordVersion() int64 { return a.Version }
func (a Auction) WithVersion(v int64) Auction {
	a.Version = v
	return a
}

// Active reports whether the auction is still ACTIVE.
func (a Auction) Active() bool { return a.Status == StatusActive }

// Ended reports whether end_at has been reached at now.
func (a Auction) Ended(now time.Time) bool { return !now.Before(a.EndAt) }

// TimeLeft returns the time until end_at, never negative.
func (a Auction) TimeLeft(now time.Time) time.Duration {
	return max(a.EndAt.Sub(now), 0)
}

// Validate checks the invariants every stored auction holds.
func (a Auction) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidAuction)
	case a.Seller == "":
		return fmt.Errorf("%w: missing seller", ErrInvalidAuction)
	case !a.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
	case a.BuyNowPrice != nil && a.BuyNowPrice.LessThan(a.Price):
		return fmt.Errorf("%w: buy now price below price", ErrInvalidPrice)
	case !a.EndAt.After(a.CreatedAt):
		return fmt.Errorf("%w: end must be after creation", ErrInvalidDuration)
	}
	return nil
}

// Finish returns a copy sold to buyer at now.
func (a Auction) Finish(buyer string, now time.Time) (Auction, error) {
	if err := a.requireActive(StatusFinished); err != nil {
		return a, err
	}
	a.Status = StatusFinished
	a.Buyer = buyer
	a.ClosedAt = &now
	return a, nil
}

// Cancel returns a copy cancelled at now.
func (a Auction) Cancel(now time.Time) (Auction, error) {
	if err := a.requireActive(StatusCancelled); err != nil {
		return a, err
	}
	a.Status = StatusCancelled
	a.ClosedAt = &now
	return a, nil
}

// Expire returns a copy expired at now. The auction must have ended.
func (a Auction) Expire(now time.Time) (Auction, error) {
	if err := a.requireActive(StatusExpired); err != nil {
		return a, err
	}
	if !a.Ended(now) {
		return a, fmt.Errorf("expiring %s before %s", a.ID, a.EndAt.Format(time.RFC3339))
	}
	a.Status = StatusExpired
	a.ClosedAt = &now
	return a, nil
}

func (a Auction) requireActive(to Status) error {
	if a.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s, cannot become %s", ErrNotActive, a.ID, a.Status, to)
	}
	return nil
}
