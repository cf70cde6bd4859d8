// Package auction runs the marketplace: listing creation, purchase,
// cancellation, expiry and the browse queries over active listings.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/item"
	"github.com/jensholdgaard/auctionhouse/internal/mailbox"
	"github.com/jensholdgaard/auctionhouse/internal/session"
	"github.com/jensholdgaard/auctionhouse/internal/store"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

// Mailbox receives items and proceeds the service hands back to players.
type Mailbox interface {
	AddItem(ctx context.Context, playerID string, stack item.Stack, reason, auctionID string) (mailbox.Item, error)
	AddMoney(ctx context.Context, playerID string, amount decimal.Decimal, reason, auctionID string) (mailbox.Item, error)
}

// Recorder appends to the transaction log and pages through it.
type Recorder interface {
	Append(ctx context.Context, tx txlog.Transaction) error
	History(ctx context.Context, playerID string, page, size int) txlog.HistoryPage
}

// Notifier is told about new listings and sales. Implementations must not
// block for long; errors are theirs to log.
type Notifier interface {
	ListingCreated(ctx context.Context, a Auction)
	ListingSold(ctx context.Context, a Auction)
}

type nopNotifier struct{}

func (nopNotifier) ListingCreated(context.Context, Auction) {}
func (nopNotifier) ListingSold(context.Context, Auction)    {}

// Mailbox reasons attached to returned items and proceeds.
const (
	ReasonSold      = "sold"
	ReasonPurchased = "purchased"
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
)

var validate = validator.New()

// Service coordinates the auction lifecycle. Status changes go through
// compare-and-update on the auctions collection; money moves through the
// economy, and the two are reconciled by compensation, not a shared lock.
type Service struct {
	auctions *store.Collection[Auction]
	economy  economy.Economy
	mailbox  Mailbox
	txlog    Recorder
	notifier Notifier
	cfg      config.AuctionConfig

	searches *session.Store[string, SearchSession]
	debug    *session.Store[string, struct{}]

	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewService creates a Service. A nil notifier disables announcements.
func NewService(
	auctions *store.Collection[Auction],
	econ economy.Economy,
	mail Mailbox,
	txs Recorder,
	notifier Notifier,
	cfg config.AuctionConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
	clk clock.Clock,
) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		auctions: auctions,
		economy:  econ,
		mailbox:  mail,
		txlog:    txs,
		notifier: notifier,
		cfg:      cfg,
		searches: session.New[string, SearchSession](0, cfg.SessionTTL),
		debug:    session.New[string, struct{}](0, debugTTL),
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auctionhouse/internal/auction"),
		clock:    clk,
	}
}

// CreateParams describes a new listing. A zero Duration uses the configured
// default.
type CreateParams struct {
	Seller       string
	Item         item.Stack
	Price        decimal.Decimal
	BuyNowPrice  *decimal.Decimal
	ReservePrice *decimal.Decimal
	Duration     time.Duration
}

// Create lists an item for sale.
func (s *Service) Create(ctx context.Context, p CreateParams) (Auction, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Create",
		trace.WithAttributes(
			attribute.String("seller", p.Seller),
			attribute.String("item", p.Item.Type),
			attribute.String("price", p.Price.String()),
		),
	)
	defer span.End()

	if err := validate.Struct(p.Item); err != nil {
		return Auction{}, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	if p.Price.LessThan(decimal.NewFromFloat(s.cfg.MinPrice)) {
		return Auction{}, fmt.Errorf("%w: minimum is %s", ErrInvalidPrice, s.economy.Format(decimal.NewFromFloat(s.cfg.MinPrice)))
	}

	duration := p.Duration
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	if duration < 0 || duration > s.cfg.MaxDuration {
		return Auction{}, fmt.Errorf("%w: must be between 0 and %s", ErrInvalidDuration, s.cfg.MaxDuration)
	}

	if limit := s.cfg.MaxListingsPerPlayer; limit > 0 && s.CountActiveBySeller(ctx, p.Seller) >= limit {
		return Auction{}, fmt.Errorf("%w: %d active listings", ErrListingLimit, limit)
	}

	now := s.clock.Now().UTC()
	a := Auction{
		ID:           uuid.NewString(),
		Seller:       p.Seller,
		Item:         p.Item.Clone(),
		Price:        p.Price,
		BuyNowPrice:  p.BuyNowPrice,
		ReservePrice: p.ReservePrice,
		CreatedAt:    now,
		EndAt:        now.Add(duration),
		Status:       StatusActive,
	}
	if err := a.Validate(); err != nil {
		return Auction{}, err
	}

	if err := s.auctions.Insert(ctx, a); err != nil {
		return Auction{}, fmt.Errorf("storing auction: %w", err)
	}

	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("seller", a.Seller),
		slog.String("item", a.Item.Name()),
		slog.String("price", a.Price.String()),
		slog.Time("end_at", a.EndAt),
	)
	s.notifier.ListingCreated(ctx, a)
	return a, nil
}

// Get returns the auction with the given id.
func (s *Service) Get(ctx context.Context, id string) (Auction, error) {
	_, span := s.tracer.Start(ctx, "Service.Get",
		trace.WithAttributes(attribute.String("auction_id", id)),
	)
	defer span.End()

	a, ok := s.auctions.Get(id)
	if !ok {
		return Auction{}, ErrNotFound
	}
	return a, nil
}

// Purchase buys auction id for buyer at its listed price. The buyer is
// charged before the status change is attempted; if another resolution wins
// the race the charge is refunded and ErrConflict returned. Proceeds and the
// item are queued in the seller's and buyer's mailboxes.
func (s *Service) Purchase(ctx context.Context, id, buyer string) (Auction, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Purchase",
		trace.WithAttributes(
			attribute.String("auction_id", id),
			attribute.String("buyer", buyer),
		),
	)
	defer span.End()

	a, ok := s.auctions.Get(id)
	if !ok {
		return Auction{}, ErrNotFound
	}
	now := s.clock.Now().UTC()
	switch {
	case !a.Active():
		return Auction{}, fmt.Errorf("%w: %s", ErrNotActive, a.Status)
	case a.Ended(now):
		return Auction{}, ErrEnded
	case a.Seller == buyer:
		return Auction{}, ErrOwnAuction
	}

	balance, err := s.economy.Balance(ctx, buyer)
	if err != nil {
		return Auction{}, fmt.Errorf("reading balance of %s: %w", buyer, err)
	}
	if balance.LessThan(a.Price) {
		return Auction{}, fmt.Errorf("%w: need %s, have %s", economy.ErrInsufficientFunds,
			s.economy.Format(a.Price), s.economy.Format(balance))
	}

	reason := "auction purchase " + a.ID
	if err := s.economy.Withdraw(ctx, buyer, a.Price, reason); err != nil {
		return Auction{}, fmt.Errorf("charging %s: %w", buyer, err)
	}
	// The buyer is charged: finish or refund even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	s.debugf(ctx, buyer, "buyer charged", slog.String("auction_id", a.ID), slog.String("price", a.Price.String()))

	finished, err := a.Finish(buyer, now)
	if err != nil {
		s.refund(ctx, buyer, a)
		return Auction{}, err
	}
	swapped, err := s.auctions.CompareAndUpdate(ctx, finished, a.Version)
	if err != nil || !swapped {
		s.refund(ctx, buyer, a)
		if err != nil {
			return Auction{}, fmt.Errorf("finishing auction %s: %w", a.ID, err)
		}
		return Auction{}, ErrConflict
	}
	finished.Version = a.Version + 1

	fee := s.fee(a.Price)
	if net := a.Price.Sub(fee); net.IsPositive() {
		if _, err := s.mailbox.AddMoney(ctx, a.Seller, net, ReasonSold, a.ID); err != nil {
			s.logger.ErrorContext(ctx, "queueing sale proceeds failed",
				slog.String("auction_id", a.ID),
				slog.String("seller", a.Seller),
				slog.String("amount", net.String()),
				slog.Any("error", err),
			)
		}
	}
	if _, err := s.mailbox.AddItem(ctx, buyer, a.Item, ReasonPurchased, a.ID); err != nil {
		s.logger.ErrorContext(ctx, "queueing purchased item failed",
			slog.String("auction_id", a.ID),
			slog.String("buyer", buyer),
			slog.Any("error", err),
		)
	}

	price := a.Price
	s.record(ctx, txlog.Transaction{
		AuctionID:  a.ID,
		Seller:     a.Seller,
		Buyer:      buyer,
		Item:       a.Item,
		FinalPrice: &price,
		Status:     txlog.Sold,
		Details:    "fee " + fee.String(),
	})

	s.logger.InfoContext(ctx, "auction sold",
		slog.String("auction_id", a.ID),
		slog.String("seller", a.Seller),
		slog.String("buyer", buyer),
		slog.String("price", a.Price.String()),
		slog.String("fee", fee.String()),
	)
	s.notifier.ListingSold(ctx, finished)
	return finished, nil
}

func (s *Service) refund(ctx context.Context, buyer string, a Auction) {
	if err := s.economy.Deposit(ctx, buyer, a.Price, "refund auction purchase "+a.ID); err != nil {
		s.logger.ErrorContext(ctx, "refund after lost purchase failed",
			slog.String("auction_id", a.ID),
			slog.String("buyer", buyer),
			slog.String("amount", a.Price.String()),
			slog.Any("error", err),
		)
		return
	}
	s.logger.WarnContext(ctx, "purchase lost race, buyer refunded",
		slog.String("auction_id", a.ID),
		slog.String("buyer", buyer),
	)
}

func (s *Service) fee(price decimal.Decimal) decimal.Decimal {
	if s.cfg.SaleFeePercent <= 0 {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromFloat(s.cfg.SaleFeePercent)).Div(decimal.NewFromInt(100)).Round(2)
}

// Cancel withdraws auction id. Only the seller may cancel unless admin is
// set. The item goes back to the seller's mailbox.
func (s *Service) Cancel(ctx context.Context, id, actor string, admin bool) (Auction, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Cancel",
		trace.WithAttributes(
			attribute.String("auction_id", id),
			attribute.String("actor", actor),
			attribute.Bool("admin", admin),
		),
	)
	defer span.End()

	a, ok := s.auctions.Get(id)
	if !ok {
		return Auction{}, ErrNotFound
	}
	if a.Seller != actor && !admin {
		return Auction{}, ErrNotSeller
	}

	cancelled, err := a.Cancel(s.clock.Now().UTC())
	if err != nil {
		return Auction{}, err
	}
	swapped, err := s.auctions.CompareAndUpdate(ctx, cancelled, a.Version)
	if err != nil {
		return Auction{}, fmt.Errorf("cancelling auction %s: %w", a.ID, err)
	}
	if !swapped {
		return Auction{}, ErrConflict
	}
	cancelled.Version = a.Version + 1

	ctx = context.WithoutCancel(ctx)
	s.returnItem(ctx, a, ReasonCancelled, txlog.Cancelled)

	s.logger.InfoContext(ctx, "auction cancelled",
		slog.String("auction_id", a.ID),
		slog.String("seller", a.Seller),
		slog.String("actor", actor),
		slog.Bool("admin", admin),
	)
	return cancelled, nil
}

// returnItem sends a's item back to its seller and records why.
func (s *Service) returnItem(ctx context.Context, a Auction, reason string, status txlog.Status) {
	if _, err := s.mailbox.AddItem(ctx, a.Seller, a.Item, reason, a.ID); err != nil {
		s.logger.ErrorContext(ctx, "returning item to seller failed",
			slog.String("auction_id", a.ID),
			slog.String("seller", a.Seller),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
	}
	s.record(ctx, txlog.Transaction{
		AuctionID: a.ID,
		Seller:    a.Seller,
		Item:      a.Item,
		Status:    status,
		Details:   reason,
	})
}

func (s *Service) record(ctx context.Context, tx txlog.Transaction) {
	tx.ID = uuid.NewString()
	tx.Timestamp = s.clock.Now().UTC()
	if err := s.txlog.Append(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "recording transaction failed",
			slog.String("auction_id", tx.AuctionID),
			slog.String("status", string(tx.Status)),
			slog.Any("error", err),
		)
	}
}
