package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront/pkg/kv"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ecomm-cart:test"

type failingStorage struct {
	kv.Store
	setErr error
	getErr error
}

func (f *failingStorage) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStorage) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func newTestStore(t *testing.T, storage kv.Store) *Store {
	t.Helper()
	return NewStore(context.Background(), StoreParams{Key: testKey, Storage: storage})
}

func assertEmpty(t *testing.T, c Cart) {
	t.Helper()
	assert.NotNil(t, c.Items)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.ItemCount)
	assert.Zero(t, c.Subtotal)
	assert.Zero(t, c.TaxAmount)
	assert.Zero(t, c.TotalAmount)
}

func TestStoreScenario(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	s := newTestStore(t, storage)
	assertEmpty(t, s.Snapshot())

	a := CatalogItem{ID: "A", Name: "Lamp", BasePrice: 10.00, TaxRate: 10}
	b := CatalogItem{ID: "B", Name: "Mug", BasePrice: 5.00, TaxRate: 0}

	c := s.AddItem(ctx, a)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, 10.00, c.Subtotal)
	assert.Equal(t, 1.00, c.TaxAmount)
	assert.Equal(t, 11.00, c.TotalAmount)
	assert.Equal(t, 1, c.ItemCount)

	c = s.AddItem(ctx, a)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, 20.00, c.Subtotal)
	assert.Equal(t, 2.00, c.TaxAmount)
	assert.Equal(t, 22.00, c.TotalAmount)
	assert.Equal(t, 2, c.ItemCount)

	c = s.AddItem(ctx, b)
	require.Len(t, c.Items, 2)
	assert.Equal(t, "A", c.Items[0].ID)
	assert.Equal(t, "B", c.Items[1].ID)
	assert.Equal(t, 25.00, c.Subtotal)
	assert.Equal(t, 2.00, c.TaxAmount)
	assert.Equal(t, 27.00, c.TotalAmount)
	assert.Equal(t, 3, c.ItemCount)

	c = s.RemoveItem(ctx, "A")
	require.Len(t, c.Items, 1)
	assert.Equal(t, "B", c.Items[0].ID)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, 5.00, c.Subtotal)
	assert.Equal(t, 0.0, c.TaxAmount)
	assert.Equal(t, 5.00, c.TotalAmount)
	assert.Equal(t, 1, c.ItemCount)

	raw, err := storage.Get(ctx, testKey)
	require.NoError(t, err)
	persisted, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, c, persisted)
}

func TestStoreAdditivityMatchesHydratedCart(t *testing.T) {
	ctx := context.Background()
	x := CatalogItem{ID: "X", BasePrice: 3.33, TaxRate: 7.5}

	s := newTestStore(t, kv.NewMemory())
	s.AddItem(ctx, x)
	added := s.AddItem(ctx, x)

	preset := kv.NewMemory()
	raw, err := Encode(withLines([]Line{{CatalogItem: x, Quantity: 2}}))
	require.NoError(t, err)
	require.NoError(t, preset.Set(ctx, testKey, raw))
	hydrated := newTestStore(t, preset).Snapshot()

	assert.Equal(t, hydrated, added)
}

func TestStoreRoundTripThroughStorage(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()

	s := newTestStore(t, storage)
	s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 19.99, TaxRate: 8.25, Images: []string{"a.png"}})
	s.AddItem(ctx, CatalogItem{ID: "B", BasePrice: 0.10})
	want := s.Snapshot()

	assert.Equal(t, want, newTestStore(t, storage).Snapshot())

	s.Clear(ctx)
	assertEmpty(t, newTestStore(t, storage).Snapshot())
}

func TestStoreRemovesWholeLine(t *testing.T) {
	for _, qty := range []int{1, 50} {
		ctx := context.Background()
		s := newTestStore(t, kv.NewMemory())
		for i := 0; i < qty; i++ {
			s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 1})
		}
		require.Equal(t, qty, s.Snapshot().ItemCount)

		c := s.RemoveItem(ctx, "A")
		_, ok := c.Line("A")
		assert.False(t, ok, "qty %d line should be gone", qty)
		assertEmpty(t, c)
	}
}

func TestStoreRemoveUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())
	before := s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 1})

	calls := 0
	s.Subscribe(func(Cart) { calls++ })

	after := s.RemoveItem(ctx, "missing")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, calls)
}

func TestStoreRoundingBoundary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())
	for _, id := range []string{"a", "b", "c"} {
		s.AddItem(ctx, CatalogItem{ID: id, BasePrice: 0.10})
	}
	c := s.Snapshot()
	assert.Equal(t, 0.30, c.Subtotal)
	assert.Equal(t, 0.30, c.TotalAmount)
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())
	s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 12.5, TaxRate: 20})
	assertEmpty(t, s.Clear(ctx))
	assertEmpty(t, s.Clear(ctx))
	assertEmpty(t, s.Snapshot())
}

func TestStoreHydrationFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.NewCartMetrics(reg)

	malformed := kv.NewMemory()
	require.NoError(t, malformed.Set(ctx, testKey, "not json"))
	s := NewStore(ctx, StoreParams{Key: testKey, Storage: malformed, Metrics: m})
	assertEmpty(t, s.Snapshot())

	broken := &failingStorage{Store: kv.NewMemory(), getErr: errors.New("connection refused")}
	s = NewStore(ctx, StoreParams{Key: testKey, Storage: broken, Metrics: m})
	assertEmpty(t, s.Snapshot())

	s = NewStore(ctx, StoreParams{Key: testKey, Storage: kv.NewMemory(), Metrics: m})
	assertEmpty(t, s.Snapshot())

	for _, outcome := range []string{metrics.HydrateMalformed, metrics.HydrateFailed, metrics.HydrateAbsent} {
		assert.Equal(t, 1.0, counterValue(t, reg, "cart_hydrations_total", "outcome", outcome), outcome)
	}
}

func TestStoreHydrationRecomputesDriftedTotals(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	require.NoError(t, storage.Set(ctx, testKey,
		`{"items":[{"_id":"A","name":"Lamp","basePrice":10,"taxRate":10,"quantity":2}],"itemCount":1,"subtotal":1,"taxAmount":1,"totalAmount":1}`))

	c := newTestStore(t, storage).Snapshot()
	assert.Equal(t, 2, c.ItemCount)
	assert.Equal(t, 20.0, c.Subtotal)
	assert.Equal(t, 2.0, c.TaxAmount)
	assert.Equal(t, 22.0, c.TotalAmount)
}

func TestStorePersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.NewCartMetrics(reg)
	storage := &failingStorage{Store: kv.NewMemory(), setErr: errors.New("quota exceeded")}
	s := NewStore(ctx, StoreParams{Key: testKey, Storage: storage, Metrics: m})

	var seen []Cart
	s.Subscribe(func(c Cart) { seen = append(seen, c) })

	c := s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 4})
	assert.Equal(t, 1, c.ItemCount)
	assert.Equal(t, 1, s.Snapshot().ItemCount)
	require.Len(t, seen, 1)
	assert.Equal(t, c, seen[0])

	_, err := storage.Store.Get(ctx, testKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.Equal(t, 1.0, counterValue(t, reg, "cart_persist_failures_total", "op", "add"))
	assert.Equal(t, 1.0, counterValue(t, reg, "cart_mutations_total", "op", "add"))
}

func TestSubscribersSeeSameCartInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())

	var first, second []Cart
	unsubFirst := s.Subscribe(func(c Cart) { first = append(first, c) })
	s.Subscribe(func(c Cart) { second = append(second, c) })

	s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 1})
	s.AddItem(ctx, CatalogItem{ID: "B", BasePrice: 2})
	unsubFirst()
	unsubFirst()
	s.Clear(ctx)

	require.Len(t, first, 2)
	require.Len(t, second, 3)
	assert.Equal(t, first, second[:2])
	assert.Equal(t, 1, second[0].ItemCount)
	assert.Equal(t, 2, second[1].ItemCount)
	assertEmpty(t, second[2])

	second[0].Items[0].Quantity = 99
	assert.Equal(t, 1, first[0].Items[0].Quantity, "subscribers must not share line slices")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	s.AddItem(context.Background(), CatalogItem{ID: "A", BasePrice: 1})

	snap := s.Snapshot()
	snap.Items[0].Quantity = 10
	snap.Items = append(snap.Items, Line{})
	assert.Equal(t, 1, s.Snapshot().ItemCount)
	assert.Len(t, s.Snapshot().Items, 1)
}

func TestConcurrentAddsAllLand(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	s := newTestStore(t, storage)

	var (
		mu   sync.Mutex
		last int
		seen []int
	)
	s.Subscribe(func(c Cart) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.ItemCount)
		last = c.ItemCount
	})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 1})
		}()
	}
	wg.Wait()

	c := s.Snapshot()
	assert.Equal(t, n, c.ItemCount)
	assert.Equal(t, n, last)
	for i, v := range seen {
		assert.Equal(t, i+1, v, "notifications out of order")
	}

	raw, err := storage.Get(ctx, testKey)
	require.NoError(t, err)
	persisted, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, n, persisted.ItemCount)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no %s sample for %s=%s", name, label, value)
	return 0
}
