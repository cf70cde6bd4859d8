// Package storetest holds behaviour checks shared by every store.Backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensholdgaard/auctionhouse/internal/store"
)

// RunBackendTests exercises the Backend contract against b.
func RunBackendTests(t *testing.T, b store.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing snapshot", func(t *testing.T) {
		data, err := b.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("save then load", func(t *testing.T) {
		want := []byte(`[{"id":"a-1","version":0}]`)
		require.NoError(t, b.Save(ctx, "auctions", want))

		got, err := b.Load(ctx, "auctions")
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
	})

	t.Run("save replaces snapshot", func(t *testing.T) {
		require.NoError(t, b.Save(ctx, "mailbox", []byte(`[{"id":"m-1"}]`)))
		require.NoError(t, b.Save(ctx, "mailbox", []byte(`[{"id":"m-2"},{"id":"m-3"}]`)))

		got, err := b.Load(ctx, "mailbox")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"m-2"},{"id":"m-3"}]`, string(got))
	})

	t.Run("names are independent", func(t *testing.T) {
		require.NoError(t, b.Save(ctx, "transactions", []byte(`[]`)))
		require.NoError(t, b.Save(ctx, "accounts", []byte(`[{"player_id":"p"}]`)))

		got, err := b.Load(ctx, "transactions")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(got))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, b.Ping(ctx))
	})
}
