package snapshots

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/kv"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{SQLitePath: filepath.Join(t.TempDir(), "carts.db")}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, migrate.Up(ctx, nil, client))

	repo, err := NewRepository(client.DB())
	require.NoError(t, err)
	return repo
}

func TestRepositoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Get(ctx, "ecomm-cart:a")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "ecomm-cart:a", "first"))
	require.NoError(t, repo.Set(ctx, "ecomm-cart:a", "second"))

	got, err := repo.Get(ctx, "ecomm-cart:a")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	var rows int64
	require.NoError(t, repo.db.Model(&CartSnapshot{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	require.NoError(t, repo.Delete(ctx, "ecomm-cart:a"))
	_, err = repo.Get(ctx, "ecomm-cart:a")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.Error(t, repo.Set(ctx, " ", "x"))
}

func TestRepositoryPrune(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Set(ctx, "old", "{}"))
	repo.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, repo.Set(ctx, "fresh", "{}"))

	n, err := repo.Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, err = repo.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRepositoryBacksCartStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	store := cart.NewStore(ctx, cart.StoreParams{Key: "ecomm-cart:s1", Storage: repo})
	store.AddItem(ctx, cart.CatalogItem{ID: "A", Name: "Lamp", BasePrice: 10, TaxRate: 10})
	store.AddItem(ctx, cart.CatalogItem{ID: "A", Name: "Lamp", BasePrice: 10, TaxRate: 10})
	want := store.Snapshot()

	reloaded := cart.NewStore(ctx, cart.StoreParams{Key: "ecomm-cart:s1", Storage: repo}).Snapshot()
	assert.Equal(t, want, reloaded)
	assert.Equal(t, 22.0, reloaded.TotalAmount)
}

func TestRepositoryUpdateDetectsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.Update(ctx, "k", func(current string, found bool) (string, error) {
		assert.False(t, found)
		return "v1", nil
	}))
	require.NoError(t, repo.Update(ctx, "k", func(current string, found bool) (string, error) {
		assert.True(t, found)
		return current + "+v2", nil
	}))

	err := repo.Update(ctx, "k", func(current string, found bool) (string, error) {
		require.NoError(t, repo.Set(ctx, "k", "other"))
		return current + "+lost", nil
	})
	assert.ErrorIs(t, err, kv.ErrConflict)
	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "other", got)

	err = repo.Update(ctx, "new", func(current string, found bool) (string, error) {
		require.NoError(t, repo.Set(ctx, "new", "theirs"))
		return "ours", nil
	})
	assert.ErrorIs(t, err, kv.ErrConflict)
	got, err = repo.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "theirs", got)

	var snap CartSnapshot
	require.NoError(t, repo.db.Where("cart_key = ?", "k").Take(&snap).Error)
	assert.EqualValues(t, 3, snap.Version)
}

func TestRepositoryKeepsReplicasConsistent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := cart.NewRegistry(cart.RegistryParams{Storage: repo})
	second := cart.NewRegistry(cart.RegistryParams{Storage: repo})
	a, err := first.Open(ctx, "s1")
	require.NoError(t, err)
	b, err := second.Open(ctx, "s1")
	require.NoError(t, err)

	a.AddItem(ctx, cart.CatalogItem{ID: "A", BasePrice: 10})
	c := b.AddItem(ctx, cart.CatalogItem{ID: "B", BasePrice: 5})
	require.Len(t, c.Items, 2)
	assert.Equal(t, 15.0, c.TotalAmount)

	assert.Equal(t, c, a.Refresh(ctx))
	stored, err := repo.Get(ctx, first.KeyFor("s1"))
	require.NoError(t, err)
	persisted, err := cart.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, c, persisted)
}
