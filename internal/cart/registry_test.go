package cart

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kv"
)

type countingStorage struct {
	kv.Store
	gets atomic.Int32
}

func (c *countingStorage) Get(ctx context.Context, key string) (string, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, key)
}

func TestRegistryReturnsSingleStorePerSession(t *testing.T) {
	storage := &countingStorage{Store: kv.NewMemory()}
	reg := NewRegistry(RegistryParams{Storage: storage})
	ctx := context.Background()

	const n = 20
	stores := make([]*Store, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := reg.Open(ctx, "sess-1")
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			stores[i] = st
		}(i)
	}
	wg.Wait()

	for i, st := range stores {
		if st != stores[0] {
			t.Fatalf("open %d returned a different store", i)
		}
	}
	if got := storage.gets.Load(); got != 1 {
		t.Fatalf("expected a single hydration read, got %d", got)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 open store, got %d", reg.Len())
	}
}

func TestRegistrySharedStoreKeepsReadersInSync(t *testing.T) {
	reg := NewRegistry(RegistryParams{Storage: kv.NewMemory()})
	ctx := context.Background()

	header, _ := reg.Open(ctx, "sess")
	page, _ := reg.Open(ctx, "sess")

	var badge int
	header.Subscribe(func(c Cart) { badge = c.ItemCount })

	page.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 2})
	if badge != 1 || header.Snapshot().ItemCount != 1 {
		t.Fatalf("expected header to observe page mutation, badge=%d", badge)
	}
}

func TestRegistryKeysAndEviction(t *testing.T) {
	storage := kv.NewMemory()
	reg := NewRegistry(RegistryParams{Storage: storage, KeyPrefix: "shop"})
	ctx := context.Background()

	if got := reg.KeyFor("abc"); got != "shop:abc" {
		t.Fatalf("unexpected key %s", got)
	}

	st, err := reg.Open(ctx, "abc")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Key() != "shop:abc" {
		t.Fatalf("unexpected store key %s", st.Key())
	}
	st.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 3})

	reg.Evict("abc")
	if reg.Len() != 0 {
		t.Fatalf("expected registry to be empty after evict")
	}

	reopened, err := reg.Open(ctx, "abc")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened == st {
		t.Fatalf("expected a fresh store after evict")
	}
	if reopened.Snapshot().ItemCount != 1 {
		t.Fatalf("expected reopened store to hydrate persisted cart")
	}
}

func TestRegistryDefaultsAndValidation(t *testing.T) {
	reg := NewRegistry(RegistryParams{})
	if got := reg.KeyFor("x"); got != DefaultKeyPrefix+":x" {
		t.Fatalf("unexpected default key %s", got)
	}
	_, err := reg.Open(context.Background(), "  ")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryHydrationIgnoresCallerCancellation(t *testing.T) {
	storage := kv.NewMemory()
	raw, err := Encode(withLines([]Line{{CatalogItem: CatalogItem{ID: "A", BasePrice: 1}, Quantity: 4}}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := storage.Set(context.Background(), "ecomm-cart:s", raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := NewRegistry(RegistryParams{Storage: storage}).Open(ctx, "s")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Snapshot().ItemCount != 4 {
		t.Fatalf("expected hydrated cart, got %+v", st.Snapshot())
	}
}

func TestRegistriesSharingStorageDoNotLoseLines(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	replicaA := NewRegistry(RegistryParams{Storage: storage})
	replicaB := NewRegistry(RegistryParams{Storage: storage})

	onA, err := replicaA.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("open on A: %v", err)
	}
	onB, err := replicaB.Open(ctx, "s1")
	if err != nil {
		t.Fatalf("open on B: %v", err)
	}
	var seenOnA []Cart
	onA.Subscribe(func(c Cart) { seenOnA = append(seenOnA, c) })

	onA.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 10})
	viaB := onB.AddItem(ctx, CatalogItem{ID: "B", BasePrice: 5})
	if len(viaB.Items) != 2 || viaB.TotalAmount != 15 {
		t.Fatalf("expected B's mutation to build on A's, got %+v", viaB)
	}

	raw, err := storage.Get(ctx, replicaA.KeyFor("s1"))
	if err != nil {
		t.Fatalf("read storage: %v", err)
	}
	persisted, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(persisted.Items) != 2 {
		t.Fatalf("expected both lines persisted, got %+v", persisted.Items)
	}

	refreshed := onA.Refresh(ctx)
	if len(refreshed.Items) != 2 || onA.Snapshot().ItemCount != 2 {
		t.Fatalf("expected A to adopt the persisted cart, got %+v", refreshed)
	}
	if len(seenOnA) != 2 || seenOnA[1].ItemCount != 2 {
		t.Fatalf("expected A's subscriber to see the refresh, got %+v", seenOnA)
	}

	onA.Refresh(ctx)
	if len(seenOnA) != 2 {
		t.Fatalf("an unchanged snapshot must not notify, got %d notifications", len(seenOnA))
	}

	cleared := onA.Clear(ctx)
	if !cleared.IsEmpty() || !onB.Refresh(ctx).IsEmpty() {
		t.Fatalf("expected clear on A to reach B")
	}
}

func TestRegistryEvictsIdleStores(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	reg := NewRegistry(RegistryParams{Storage: storage})

	const n = 1000
	for i := 0; i < n; i++ {
		if _, err := reg.Open(ctx, fmt.Sprintf("visitor-%d", i)); err != nil {
			t.Fatalf("open: %v", err)
		}
	}
	kept, _ := reg.Open(ctx, "shopper")
	kept.AddItem(ctx, CatalogItem{ID: "A", BasePrice: 2})
	watched, _ := reg.Open(ctx, "watcher")
	unsubscribe := watched.Subscribe(func(Cart) {})

	if got := reg.EvictIdle(time.Now().Add(-time.Hour)); got != 0 {
		t.Fatalf("recently used stores must stay, evicted %d", got)
	}

	if got := reg.EvictIdle(time.Now().Add(time.Second)); got != n+1 {
		t.Fatalf("expected %d idle stores evicted, got %d", n+1, got)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected only the subscribed store to remain, got %d", reg.Len())
	}

	reopened, err := reg.Open(ctx, "shopper")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened == kept || reopened.Snapshot().ItemCount != 1 {
		t.Fatalf("expected a fresh store hydrated from storage, got %+v", reopened.Snapshot())
	}

	unsubscribe()
	reg.EvictIdle(time.Now().Add(time.Second))
	if reg.Len() != 0 {
		t.Fatalf("expected unsubscribed store to be evicted, got %d", reg.Len())
	}
}

func TestRegistryRunSweepsUntilCancelled(t *testing.T) {
	reg := NewRegistry(RegistryParams{Storage: kv.NewMemory()})
	if _, err := reg.Open(context.Background(), "s"); err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle store was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
