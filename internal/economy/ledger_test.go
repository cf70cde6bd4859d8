package economy_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

func newTestLedger(t *testing.T, starting float64) (*economy.Ledger, *store.Collection[economy.Account]) {
	t.Helper()
	accounts, err := store.Open[economy.Account](context.Background(), economy.CollectionName,
		store.NewMemoryBackend(), store.JSONCodec[economy.Account]{}, store.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = accounts.Close() })

	cfg := config.EconomyConfig{CurrencySymbol: "$", StartingBalance: starting}
	clk := clock.Mock{T: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	return economy.NewLedger(accounts, cfg, slog.Default(), noop.NewTracerProvider(), clk), accounts
}

func TestLedger_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	l, accounts := newTestLedger(t, 0)

	if err := l.Deposit(ctx, "alice", decimal.NewFromInt(150), "test"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(ctx, "alice", decimal.RequireFromString("49.50"), "test"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	got, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if want := decimal.RequireFromString("100.50"); !got.Equal(want) {
		t.Errorf("Balance = %s, want %s", got, want)
	}

	acct, ok := accounts.Get("alice")
	if !ok {
		t.Fatal("account not stored")
	}
	if acct.Version != 1 {
		t.Errorf("Version = %d, want 1", acct.Version)
	}
	if !acct.UpdatedAt.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", acct.UpdatedAt)
	}
}

func TestLedger_StartingBalance(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, 25)

	got, err := l.Balance(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Balance = %s, want 25", got)
	}

	if err := l.Withdraw(ctx, "newcomer", decimal.NewFromInt(10), "test"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	got, _ = l.Balance(ctx, "newcomer")
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Balance = %s, want 15", got)
	}
}

func TestLedger_Errors(t *testing.T) {
	tests := []struct {
		name    string
		op      func(l *economy.Ledger) error
		wantErr error
	}{
		{
			name: "withdraw more than balance",
			op: func(l *economy.Ledger) error {
				return l.Withdraw(context.Background(), "bob", decimal.NewFromInt(51), "test")
			},
			wantErr: economy.ErrInsufficientFunds,
		},
		{
			name: "zero withdrawal",
			op: func(l *economy.Ledger) error {
				return l.Withdraw(context.Background(), "bob", decimal.Zero, "test")
			},
			wantErr: economy.ErrInvalidAmount,
		},
		{
			name: "negative deposit",
			op: func(l *economy.Ledger) error {
				return l.Deposit(context.Background(), "bob", decimal.NewFromInt(-5), "test")
			},
			wantErr: economy.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t, 50)
			if err := tt.op(l); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			got, _ := l.Balance(context.Background(), "bob")
			if !got.Equal(decimal.NewFromInt(50)) {
				t.Errorf("Balance = %s, want unchanged 50", got)
			}
		})
	}
}

func TestLedger_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, 0)
	if err := l.Deposit(ctx, "carol", decimal.NewFromInt(50), "test"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Withdraw(ctx, "carol", decimal.NewFromInt(10), "race")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, economy.ErrInsufficientFunds) {
				t.Errorf("Withdraw: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Errorf("succeeded = %d, want 5", succeeded)
	}
	got, _ := l.Balance(ctx, "carol")
	if !got.IsZero() {
		t.Errorf("Balance = %s, want 0", got)
	}
}

func TestLedger_Format(t *testing.T) {
	l, _ := newTestLedger(t, 0)
	if got := l.Format(decimal.RequireFromString("1234.5")); got != "$1234.50" {
		t.Errorf("Format = %q, want %q", got, "$1234.50")
	}
}
