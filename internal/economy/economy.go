// Package economy defines the balance service the marketplace settles
// against, and Ledger, a bundled implementation kept in a store.Collection.
package economy

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrBusy is returned when an account kept changing underneath an update.
	ErrBusy = errors.New("account busy, try again")
)

// Economy is the balance service. Withdraw and Deposit are not idempotent;
// callers compensate a failed pair themselves.
type Economy interface {
	Balance(ctx context.Context, playerID string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, playerID string, amount decimal.Decimal, reason string) error
	Deposit(ctx context.Context, playerID string, amount decimal.Decimal, reason string) error
	Format(amount decimal.Decimal) string
}

// Account is a player balance held by Ledger.
type Account struct {
	PlayerID  string          `json:"player_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"`
}

func (a Account) RecordID() string     { return a.PlayerID }
func (a Account) RecordVersion() int64 { return a.Version }
func (a Account) WithVersion(v int64) Account {
	a.Version = v
	return a
}
