package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensholdgaard/auctionhouse/internal/store/sqlitestore"
	"github.com/jensholdgaard/auctionhouse/internal/store/storetest"
)

func TestBackend(t *testing.T) {
	b, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	storetest.RunBackendTests(t, b)
}

func TestBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	b, err := sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, "auctions", []byte(`[{"id":"a-1"}]`)))
	require.NoError(t, b.Close())

	reopened, err := sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Load(ctx, "auctions")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a-1"}]`, string(got))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlitestore.Open(context.Background(), "")
	assert.Error(t, err)
}
