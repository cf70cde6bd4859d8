package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jensholdgaard/auctionhouse/internal/clock"
)

type expirer interface {
	SweepExpired(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type retentionSweeper interface {
	SweepRetention(ctx context.Context, maxAgeDays int) (int, error)
}

// ExpiryJob expires ended auctions batch by batch until a batch comes back
// short.
type ExpiryJob struct {
	auctions  expirer
	batchSize int
	clock     clock.Clock
	logger    *slog.Logger
}

// NewExpiryJob returns the auction-expiry job.
func NewExpiryJob(auctions expirer, batchSize int, clk clock.Clock, logger *slog.Logger) *ExpiryJob {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryJob{auctions: auctions, batchSize: batchSize, clock: clk, logger: logger}
}

func (j *ExpiryJob) Name() string { return "auction-expiry" }

func (j *ExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		n, err := j.auctions.SweepExpired(ctx, j.clock.Now(), j.batchSize)
		total += n
		if err != nil {
			return err
		}
		if n < j.batchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		j.logger.InfoContext(ctx, "auctions expired", slog.Int("count", total))
	}
	return nil
}

// RetentionJob deletes records older than a number of days through a
// SweepRetention call. Zero days disables it.
type RetentionJob struct {
	name    string
	sweeper retentionSweeper
	days    int
	logger  *slog.Logger
}

// NewMailboxRetentionJob returns the mailbox-retention job.
func NewMailboxRetentionJob(mailbox retentionSweeper, days int, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{name: "mailbox-retention", sweeper: mailbox, days: days, logger: logger}
}

// NewAuctionRetentionJob returns the auction-retention job.
func NewAuctionRetentionJob(auctions retentionSweeper, days int, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{name: "auction-retention", sweeper: auctions, days: days, logger: logger}
}

func (j *RetentionJob) Name() string { return j.name }

func (j *RetentionJob) Run(ctx context.Context) error {
	if j.days <= 0 {
		return nil
	}
	n, err := j.sweeper.SweepRetention(ctx, j.days)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "retention sweep deleted records",
			slog.String("job", j.name),
			slog.Int("deleted", n),
		)
	}
	return nil
}
