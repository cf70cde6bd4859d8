package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/item"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

const maxClaimAttempts = 8

// Service adds deliveries to mailboxes and settles claims.
type Service struct {
	items     *store.Collection[Item]
	economy   economy.Economy
	inventory Inventory
	cfg       config.MailboxConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
}

// NewService returns a Service. A nil inventory makes ITEM claims fail with
// ErrNoInventory before anything is committed.
func NewService(items *store.Collection[Item], econ economy.Economy, inv Inventory, cfg config.MailboxConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Service {
	return &Service{
		items:     items,
		economy:   econ,
		inventory: inv,
		cfg:       cfg,
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/auctionhouse/internal/mailbox"),
		clock:     clk,
	}
}

// AddItem queues stack for playerID.
func (s *Service) AddItem(ctx context.Context, playerID string, stack item.Stack, reason, auctionID string) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AddItem",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("auction_id", auctionID),
		),
	)
	defer span.End()

	stack = stack.Clone()
	m := s.newItem(playerID, KindItem, reason, auctionID)
	m.Item = &stack

	if err := s.items.Insert(ctx, m); err != nil {
		return Item{}, fmt.Errorf("adding item to mailbox of %s: %w", playerID, err)
	}

	s.logger.InfoContext(ctx, "item added to mailbox",
		slog.String("player_id", playerID),
		slog.String("mailbox_item_id", m.ID),
		slog.String("item", stack.Name()),
		slog.String("reason", reason),
	)
	return m, nil
}

// AddMoney queues amount for playerID.
func (s *Service) AddMoney(ctx context.Context, playerID string, amount decimal.Decimal, reason, auctionID string) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AddMoney",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	if !amount.IsPositive() {
		return Item{}, ErrInvalidAmount
	}

	m := s.newItem(playerID, KindMoney, reason, auctionID)
	m.Amount = amount

	if err := s.items.Insert(ctx, m); err != nil {
		return Item{}, fmt.Errorf("adding money to mailbox of %s: %w", playerID, err)
	}

	s.logger.InfoContext(ctx, "money added to mailbox",
		slog.String("player_id", playerID),
		slog.String("mailbox_item_id", m.ID),
		slog.String("amount", amount.String()),
		slog.String("reason", reason),
	)
	return m, nil
}

func (s *Service) newItem(playerID string, kind Kind, reason, auctionID string) Item {
	now := s.clock.Now().UTC()
	return Item{
		ID:               uuid.NewString(),
		PlayerID:         playerID,
		Kind:             kind,
		Reason:           reason,
		RelatedAuctionID: auctionID,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, s.cfg.RetentionDays),
	}
}

// Get returns the mailbox item with the given id.
func (s *Service) Get(_ context.Context, id string) (Item, bool) {
	return s.items.Get(id)
}

// Paging bounds for Pending and PendingPage.
const (
	DefaultPageSize = 28
	MaxPageSize     = 100
)

// Page is one page of a player's claimable items.
type Page struct {
	Items   []Item `json:"items"`
	Page    int    `json:"page"`
	Size    int    `json:"size"`
	Total   int    `json:"total"`
	HasNext bool   `json:"has_next"`
}

// Pending returns one 1-based page of playerID's claimable items, newest
// first. A size of zero or less means DefaultPageSize; larger sizes are
// capped at MaxPageSize.
func (s *Service) Pending(ctx context.Context, playerID string, page, size int) []Item {
	return s.PendingPage(ctx, playerID, page, size).Items
}

// PendingPage is Pending with the normalized page and size, the total
// pending count and whether a further page exists.
func (s *Service) PendingPage(ctx context.Context, playerID string, page, size int) Page {
	ctx, span := s.tracer.Start(ctx, "Service.PendingPage",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	page, size, offset := store.Window(page, size, DefaultPageSize, MaxPageSize)
	items := s.pending(playerID, offset, size+1)
	hasNext := len(items) > size
	if hasNext {
		items = items[:size]
	}
	return Page{
		Items:   items,
		Page:    page,
		Size:    size,
		Total:   s.CountPending(ctx, playerID),
		HasNext: hasNext,
	}
}

// pending queries claimable items newest first. A limit of zero or less
// returns everything after offset.
func (s *Service) pending(playerID string, offset, limit int) []Item {
	now := s.clock.Now()
	return s.items.Query(store.Query[Item]{
		Filter: func(m Item) bool {
			return m.PlayerID == playerID && m.Pending(now)
		},
		Compare: func(a, b Item) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		},
		Offset: offset,
		Limit:  limit,
	})
}

// CountPending returns how many claimable items playerID has.
func (s *Service) CountPending(_ context.Context, playerID string) int {
	now := s.clock.Now()
	return s.items.Count(func(m Item) bool {
		return m.PlayerID == playerID && m.Pending(now)
	})
}

// TryClaim flips the claimed flag of id and persists it. It reports false
// when the item is absent or already claimed. Exactly one of any number of
// concurrent callers for the same id gets true.
func (s *Service) TryClaim(ctx context.Context, id string) (bool, error) {
	for range maxClaimAttempts {
		cur, ok := s.items.Get(id)
		if !ok || cur.Claimed {
			return false, nil
		}

		now := s.clock.Now().UTC()
		next := cur
		next.Claimed = true
		next.ClaimedAt = &now

		swapped, err := s.items.CompareAndUpdate(ctx, next, cur.Version)
		if err != nil {
			return false, fmt.Errorf("claiming %s: %w", id, err)
		}
		if swapped {
			return true, nil
		}
	}
	return false, nil
}

// Claim settles one mailbox item for playerID: the claim is committed first,
// then the item is handed to the inventory or the money deposited. A failed
// delivery leaves the item claimed and returns ErrDeliveryFailed.
func (s *Service) Claim(ctx context.Context, playerID, id string) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Claim",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("mailbox_item_id", id),
		),
	)
	defer span.End()

	m, ok := s.items.Get(id)
	switch {
	case !ok:
		return Item{}, ErrNotFound
	case m.PlayerID != playerID:
		return Item{}, ErrNotOwner
	case m.Claimed:
		return Item{}, ErrAlreadyClaimed
	case m.Expired(s.clock.Now()):
		return Item{}, ErrExpired
	}

	if m.Kind == KindItem {
		if s.inventory == nil {
			return Item{}, ErrNoInventory
		}
		space, err := s.inventory.HasSpace(ctx, playerID, *m.Item)
		if err != nil {
			return Item{}, fmt.Errorf("checking inventory of %s: %w", playerID, err)
		}
		if !space {
			return Item{}, ErrInventoryFull
		}
	}

	claimed, err := s.TryClaim(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !claimed {
		return Item{}, ErrAlreadyClaimed
	}
	// The claim is committed; delivery must not be abandoned with it.
	ctx = context.WithoutCancel(ctx)
	m, _ = s.items.Get(id)

	if err := s.deliver(ctx, m); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "mailbox delivery failed after claim",
			slog.String("player_id", playerID),
			slog.String("mailbox_item_id", id),
			slog.String("kind", string(m.Kind)),
			slog.Any("error", err),
		)
		return m, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.logger.InfoContext(ctx, "mailbox item claimed",
		slog.String("player_id", playerID),
		slog.String("mailbox_item_id", id),
		slog.String("kind", string(m.Kind)),
	)
	return m, nil
}

func (s *Service) deliver(ctx context.Context, m Item) error {
	if m.Kind == KindMoney {
		return s.economy.Deposit(ctx, m.PlayerID, m.Amount, "claimed from mailbox")
	}
	return s.inventory.Give(ctx, m.PlayerID, *m.Item)
}

// ClaimAll claims playerID's pending items one at a time, up to the
// configured limit. Items that fail are skipped; their errors are combined
// into the returned error alongside the items that were claimed.
func (s *Service) ClaimAll(ctx context.Context, playerID string) ([]Item, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ClaimAll",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	pending := s.pending(playerID, 0, s.cfg.ClaimAllLimit)
	if len(pending) == 0 {
		return nil, ErrEmpty
	}

	var (
		claimed []Item
		errs    error
	)
	for _, p := range pending {
		m, err := s.Claim(ctx, playerID, p.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		claimed = append(claimed, m)
	}

	s.logger.InfoContext(ctx, "mailbox claim all finished",
		slog.String("player_id", playerID),
		slog.Int("claimed", len(claimed)),
		slog.Int("failed", len(multierr.Errors(errs))),
	)
	return claimed, errs
}

// SweepRetention deletes expired unclaimed items, and claimed items created
// more than maxAgeDays ago. A maxAgeDays of zero or less keeps claimed items.
func (s *Service) SweepRetention(ctx context.Context, maxAgeDays int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SweepRetention",
		trace.WithAttributes(attribute.Int("max_age_days", maxAgeDays)),
	)
	defer span.End()

	now := s.clock.Now()
	var cutoff time.Time
	if maxAgeDays > 0 {
		cutoff = now.AddDate(0, 0, -maxAgeDays)
	}

	n, err := s.items.DeleteMatching(ctx, func(m Item) bool {
		if !m.Claimed {
			return m.Expired(now)
		}
		return !cutoff.IsZero() && m.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping mailbox: %w", err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "mailbox retention sweep",
			slog.Int("deleted", n),
			slog.Int("max_age_days", maxAgeDays),
		)
	}
	return n, nil
}
