package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

// CollectionName is the snapshot name of the accounts collection.
const CollectionName = "accounts"

const maxAdjustAttempts = 16

// Ledger implements Economy on top of a Collection of accounts. Every change
// is a compare-and-update retried while other writers race on the account.
type Ledger struct {
	accounts *store.Collection[Account]
	starting decimal.Decimal
	symbol   string
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewLedger returns a Ledger. Players without an account start with
// cfg.StartingBalance.
func NewLedger(accounts *store.Collection[Account], cfg config.EconomyConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Ledger {
	return &Ledger{
		accounts: accounts,
		starting: decimal.NewFromFloat(cfg.StartingBalance),
		symbol:   cfg.CurrencySymbol,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auctionhouse/internal/economy"),
		clock:    clk,
	}
}

// Balance returns the player's balance.
func (l *Ledger) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	_, span := l.tracer.Start(ctx, "Ledger.Balance",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	acct, ok := l.accounts.Get(playerID)
	if !ok {
		return l.starting, nil
	}
	return acct.Balance, nil
}

// Withdraw removes amount from the player's balance.
func (l *Ledger) Withdraw(ctx context.Context, playerID string, amount decimal.Decimal, reason string) error {
	ctx, span := l.tracer.Start(ctx, "Ledger.Withdraw",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	balance, err := l.adjust(ctx, playerID, func(cur decimal.Decimal) (decimal.Decimal, error) {
		if cur.LessThan(amount) {
			return cur, ErrInsufficientFunds
		}
		return cur.Sub(amount), nil
	})
	if err != nil {
		return fmt.Errorf("withdrawing from %s: %w", playerID, err)
	}

	l.logger.InfoContext(ctx, "balance withdrawn",
		slog.String("player_id", playerID),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()),
		slog.String("reason", reason),
	)
	return nil
}

// Deposit adds amount to the player's balance.
func (l *Ledger) Deposit(ctx context.Context, playerID string, amount decimal.Decimal, reason string) error {
	ctx, span := l.tracer.Start(ctx, "Ledger.Deposit",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	balance, err := l.adjust(ctx, playerID, func(cur decimal.Decimal) (decimal.Decimal, error) {
		return cur.Add(amount), nil
	})
	if err != nil {
		return fmt.Errorf("depositing to %s: %w", playerID, err)
	}

	l.logger.InfoContext(ctx, "balance deposited",
		slog.String("player_id", playerID),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()),
		slog.String("reason", reason),
	)
	return nil
}

// Format renders amount with the configured currency symbol.
func (l *Ledger) Format(amount decimal.Decimal) string {
	return l.symbol + amount.StringFixed(2)
}

func (l *Ledger) adjust(ctx context.Context, playerID string, change func(decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	for range maxAdjustAttempts {
		acct, exists := l.accounts.Get(playerID)
		if !exists {
			acct = Account{PlayerID: playerID, Balance: l.starting}
		}

		next, err := change(acct.Balance)
		if err != nil {
			return decimal.Zero, err
		}

		updated := acct
		updated.Balance = next
		updated.UpdatedAt = l.clock.Now().UTC()

		if !exists {
			err := l.accounts.Insert(ctx, updated)
			if errors.Is(err, store.ErrDuplicateID) {
				continue
			}
			if err != nil {
				return decimal.Zero, err
			}
			return next, nil
		}

		ok, err := l.accounts.CompareAndUpdate(ctx, updated, acct.Version)
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			return next, nil
		}
	}
	return decimal.Zero, ErrBusy
}
