// Package announce posts auction house activity to a Discord channel.
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/config"
)

const sendTimeout = 10 * time.Second

// Sender is the part of a Discord session used to post messages.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Formatter renders money amounts.
type Formatter interface {
	Format(amount decimal.Decimal) string
}

// Nop announces nothing.
type Nop struct{}

func (Nop) ListingCreated(context.Context, auction.Auction) {}
func (Nop) ListingSold(context.Context, auction.Auction)    {}

// Discord posts new listings and sales to one channel. Messages are sent in
// the background; Close waits for the ones in flight.
type Discord struct {
	sender  Sender
	cfg     config.AnnounceConfig
	money   Formatter
	logger  *slog.Logger
	tracer  trace.Tracer
	closeFn func() error

	wg sync.WaitGroup
}

// NewDiscord opens a bot session with cfg.Token.
func NewDiscord(cfg config.AnnounceConfig, money Formatter, logger *slog.Logger, tp trace.TracerProvider) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	d := NewWithSender(session, cfg, money, logger, tp)
	d.closeFn = session.Close
	return d, nil
}

// NewWithSender returns a Discord announcer posting through sender.
func NewWithSender(sender Sender, cfg config.AnnounceConfig, money Formatter, logger *slog.Logger, tp trace.TracerProvider) *Discord {
	return &Discord{
		sender: sender,
		cfg:    cfg,
		money:  money,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/auctionhouse/internal/announce"),
	}
}

// ListingCreated announces a new listing when new_listings is on.
func (d *Discord) ListingCreated(ctx context.Context, a auction.Auction) {
	if !d.cfg.NewListings {
		return
	}
	msg := fmt.Sprintf("New listing: **%dx %s** for **%s** by %s (ID: `%s`)",
		a.Item.Amount, a.Item.Name(), d.money.Format(a.Price), a.Seller, a.ID)
	d.post(ctx, "ListingCreated", a.ID, msg)
}

// ListingSold announces a sale when sales is on.
func (d *Discord) ListingSold(ctx context.Context, a auction.Auction) {
	if !d.cfg.Sales {
		return
	}
	msg := fmt.Sprintf("Sold: **%dx %s** for **%s** (seller %s, buyer %s)",
		a.Item.Amount, a.Item.Name(), d.money.Format(a.Price), a.Seller, a.Buyer)
	d.post(ctx, "ListingSold", a.ID, msg)
}

func (d *Discord) post(ctx context.Context, op, auctionID, msg string) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		ctx, span := d.tracer.Start(ctx, "Discord."+op,
			trace.WithAttributes(attribute.String("auction_id", auctionID)),
		)
		defer span.End()

		if _, err := d.sender.ChannelMessageSend(d.cfg.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
			span.RecordError(err)
			d.logger.WarnContext(ctx, "announcement failed",
				slog.String("auction_id", auctionID),
				slog.Any("error", err),
			)
		}
	}()
}

// Close waits for pending messages and closes the session.
func (d *Discord) Close() error {
	d.wg.Wait()
	if d.closeFn != nil {
		return d.closeFn()
	}
	return nil
}
