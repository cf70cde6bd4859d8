package auction

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionhouse/internal/txlog"
)

// ListActive returns one page of active listings matching q. Category and
// Sort may be empty; any other unknown value is rejected.
func (s *Service) ListActive(ctx context.Context, q ListQuery) (Page, error) {
	_, span := s.tracer.Start(ctx, "Service.ListActive",
		trace.WithAttributes(
			attribute.String("category", string(q.Category)),
			attribute.String("sort", string(q.Sort)),
			attribute.Int("page", q.Page),
		),
	)
	defer span.End()

	f, err := q.Filter.normalize()
	if err != nil {
		return Page{}, err
	}
	sort, err := ParseSortOrder(string(q.Sort))
	if err != nil {
		return Page{}, err
	}
	return pageOf(s.auctions, f.matcher(), sort.compare, q.Page, q.Size), nil
}

// CountActive returns how many active listings match f, using the same
// category and search rules as ListActive.
func (s *Service) CountActive(ctx context.Context, f Filter) (int, error) {
	_, span := s.tracer.Start(ctx, "Service.CountActive",
		trace.WithAttributes(attribute.String("category", string(f.Category))),
	)
	defer span.End()

	f, err := f.normalize()
	if err != nil {
		return 0, err
	}
	return s.auctions.Count(f.matcher()), nil
}

// CountAllActive returns the number of active listings.
func (s *Service) CountAllActive(context.Context) int {
	return s.auctions.Count(Auction.Active)
}

// CountActiveBySeller returns how many active listings seller has.
func (s *Service) CountActiveBySeller(_ context.Context, seller string) int {
	return s.auctions.Count(func(a Auction) bool {
		return a.Seller == seller && a.Active()
	})
}

// ListBySeller returns seller's listings in every status, newest first.
func (s *Service) ListBySeller(ctx context.Context, seller string, page, size int) Page {
	_, span := s.tracer.Start(ctx, "Service.ListBySeller",
		trace.WithAttributes(attribute.String("seller", seller)),
	)
	defer span.End()

	return pageOf(s.auctions, func(a Auction) bool {
		return a.Seller == seller
	}, newestFirst, page, size)
}

// ListHistory returns a page of playerID's transactions as seller or buyer,
// newest first.
func (s *Service) ListHistory(ctx context.Context, playerID string, page, size int) txlog.HistoryPage {
	ctx, span := s.tracer.Start(ctx, "Service.ListHistory",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	return s.txlog.History(ctx, playerID, page, size)
}
