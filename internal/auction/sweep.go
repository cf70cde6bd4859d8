package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/jensholdgaard/auctionhouse/internal/store"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

// SweepExpired expires up to batchSize active auctions whose end time is at
// or before now, earliest first, and returns how many it expired. Auctions
// resolved by someone else meanwhile are skipped. Running it again with
// nothing new to expire does nothing.
func (s *Service) SweepExpired(ctx context.Context, now time.Time, batchSize int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SweepExpired",
		trace.WithAttributes(attribute.Int("batch_size", batchSize)),
	)
	defer span.End()

	due := s.auctions.Query(store.Query[Auction]{
		Filter: func(a Auction) bool {
			return a.Active() && a.Ended(now)
		},
		Compare: func(a, b Auction) int {
			return a.EndAt.Compare(b.EndAt)
		},
		Limit: batchSize,
	})

	var (
		expired int
		errs    error
	)
	for _, a := range due {
		next, err := a.Expire(now)
		if err != nil {
			continue
		}
		swapped, err := s.auctions.CompareAndUpdate(ctx, next, a.Version)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expiring %s: %w", a.ID, err))
			continue
		}
		if !swapped {
			s.logger.DebugContext(ctx, "auction resolved elsewhere during sweep",
				slog.String("auction_id", a.ID),
			)
			continue
		}
		expired++
		s.returnItem(context.WithoutCancel(ctx), a, ReasonExpired, txlog.Expired)
	}

	if expired > 0 {
		s.logger.InfoContext(ctx, "expired auctions swept",
			slog.Int("expired", expired),
			slog.Int("due", len(due)),
		)
	}
	if errs != nil {
		span.RecordError(errs)
	}
	return expired, errs
}

// SweepRetention deletes resolved auctions closed more than maxAgeDays ago.
// A maxAgeDays of zero or less deletes nothing.
func (s *Service) SweepRetention(ctx context.Context, maxAgeDays int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SweepRetention",
		trace.WithAttributes(attribute.Int("max_age_days", maxAgeDays)),
	)
	defer span.End()

	if maxAgeDays <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().AddDate(0, 0, -maxAgeDays)

	n, err := s.auctions.DeleteMatching(ctx, func(a Auction) bool {
		if a.Active() {
			return false
		}
		closed := a.EndAt
		if a.ClosedAt != nil {
			closed = *a.ClosedAt
		}
		return closed.Before(cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping auctions: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "auction retention sweep",
			slog.Int("deleted", n),
			slog.Int("max_age_days", maxAgeDays),
		)
	}
	return n, nil
}
