package announce_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auctionhouse/internal/announce"
	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/item"
)

type fakeSender struct {
	mu       sync.Mutex
	channels []string
	messages []string
	err      error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channelID)
	f.messages = append(f.messages, content)
	return &discordgo.Message{Content: content}, f.err
}

type dollars struct{}

func (dollars) Format(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

func sample() auction.Auction {
	return auction.Auction{
		ID:     "a-1",
		Seller: "alice",
		Buyer:  "bob",
		Item:   item.Stack{Type: "DIAMOND_SWORD", Amount: 1},
		Price:  decimal.NewFromInt(250),
	}
}

func newDiscord(sender announce.Sender, cfg config.AnnounceConfig) *announce.Discord {
	cfg.Enabled = true
	cfg.ChannelID = "chan-1"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return announce.NewWithSender(sender, cfg, dollars{}, logger, noop.NewTracerProvider())
}

func TestDiscord_Toggles(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AnnounceConfig
		want []string
	}{
		{
			name: "both on",
			cfg:  config.AnnounceConfig{NewListings: true, Sales: true},
			want: []string{
				"New listing: **1x Diamond Sword** for **$250.00** by alice (ID: `a-1`)",
				"Sold: **1x Diamond Sword** for **$250.00** (seller alice, buyer bob)",
			},
		},
		{
			name: "sales only",
			cfg:  config.AnnounceConfig{Sales: true},
			want: []string{"Sold: **1x Diamond Sword** for **$250.00** (seller alice, buyer bob)"},
		},
		{
			name: "both off",
			cfg:  config.AnnounceConfig{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := newDiscord(sender, tt.cfg)
			ctx := context.Background()

			d.ListingCreated(ctx, sample())
			require.NoError(t, d.Close())
			d.ListingSold(ctx, sample())
			require.NoError(t, d.Close())

			assert.Equal(t, tt.want, sender.messages)
			for _, ch := range sender.channels {
				assert.Equal(t, "chan-1", ch)
			}
		})
	}
}

func TestDiscord_SendFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("discord down")}
	d := newDiscord(sender, config.AnnounceConfig{NewListings: true})

	d.ListingCreated(context.Background(), sample())
	require.NoError(t, d.Close())
	assert.Len(t, sender.messages, 1)
}

func TestDiscord_OutlivesCallerContext(t *testing.T) {
	sender := &fakeSender{}
	d := newDiscord(sender, config.AnnounceConfig{Sales: true})

	ctx, cancel := context.WithCancel(context.Background())
	d.ListingSold(ctx, sample())
	cancel()
	require.NoError(t, d.Close())
	assert.Len(t, sender.messages, 1)
}

func TestNop(t *testing.T) {
	var n auction.Notifier = announce.Nop{}
	n.ListingCreated(context.Background(), sample())
	n.ListingSold(context.Background(), sample())
}
