package cart

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/storefront/pkg/kv"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	opAdd    = "add"
	opRemove = "remove"
	opClear  = "clear"

	// bounds retries when other replicas keep writing the same cart
	maxUpdateAttempts = 5
)

// StoreParams configures a Store.
type StoreParams struct {
	Key     string
	Storage kv.Store
	Logger  *logger.Logger
	Metrics *metrics.CartMetrics
}

// Store owns the cart for one session. Every mutation recomputes the totals, writes
// the snapshot to storage and then notifies subscribers in mutation order.
//
// When the storage is kv.Versioned the persisted snapshot is authoritative: each
// mutation re-reads it and applies the change with an optimistic update, so stores for
// the same key in other processes never overwrite each other's lines. If that update
// fails the change is applied to the in-memory cart only. With plain kv.Store storage
// the in-memory cart is authoritative and storage is written through.
//
// Subscribers run synchronously and must not call AddItem, RemoveItem or Clear.
type Store struct {
	key     string
	storage kv.Store
	logg    *logger.Logger
	metrics *metrics.CartMetrics

	mu   sync.Mutex
	cart Cart

	// unix nanoseconds of the last Open or mutation, read by idle eviction
	lastUsed atomic.Int64

	// held from the end of a mutation until its subscribers return
	dispatchMu sync.Mutex

	subsMu sync.Mutex
	subs   map[uint64]func(Cart)
	nextID uint64
}

// NewStore builds a Store and hydrates it from storage. Missing, unreadable or
// malformed snapshots yield an empty cart.
func NewStore(ctx context.Context, p StoreParams) *Store {
	s := &Store{
		key:     p.Key,
		storage: p.Storage,
		logg:    p.Logger,
		metrics: p.Metrics,
		subs:    make(map[uint64]func(Cart)),
	}
	if s.key == "" {
		s.key = DefaultKeyPrefix
	}
	if s.storage == nil {
		s.storage = kv.NewMemory()
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	s.cart = s.hydrate(ctx)
	s.touch()
	return s
}

// Key returns the storage key the snapshot is written under.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) hydrate(ctx context.Context) Cart {
	c, outcome := s.load(ctx)
	s.metrics.IncHydration(outcome)
	return c
}

// load reads and decodes the persisted snapshot. Missing, unreadable or malformed
// values yield an empty cart; the outcome says which.
func (s *Store) load(ctx context.Context) (Cart, string) {
	ctx = s.logg.WithField(ctx, "cart_key", s.key)

	raw, err := s.storage.Get(ctx, s.key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return Empty(), metrics.HydrateAbsent
	case err != nil:
		s.logg.Error(ctx, "read cart snapshot", err)
		return Empty(), metrics.HydrateFailed
	}
	return s.decode(ctx, raw)
}

func (s *Store) decode(ctx context.Context, raw string) (Cart, string) {
	stored, err := Decode(raw)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "discarding malformed cart snapshot")
		return Empty(), metrics.HydrateMalformed
	}

	restored := withLines(stored.Items)
	if totalsOf(stored) != totalsOf(restored) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"stored_total":     stored.TotalAmount,
			"recomputed_total": restored.TotalAmount,
		}), "stored cart totals drifted from lines")
	}
	return restored, metrics.HydrateRestored
}

// AddItem increments the line for item.ID, or appends a new line with quantity 1.
func (s *Store) AddItem(ctx context.Context, item CatalogItem) Cart {
	return s.mutate(ctx, opAdd, func(lines []Line) []Line {
		return addLine(lines, item)
	})
}

// RemoveItem drops the whole line for id. An unknown id leaves the lines unchanged
// but still persists and notifies.
func (s *Store) RemoveItem(ctx context.Context, id string) Cart {
	return s.mutate(ctx, opRemove, func(lines []Line) []Line {
		return removeLine(lines, id)
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) Cart {
	return s.mutate(ctx, opClear, func([]Line) []Line {
		return []Line{}
	})
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Subscribe registers fn for every subsequent cart change and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Cart)) func() {
	if fn == nil {
		return func() {}
	}
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Refresh re-reads the persisted snapshot and, if it differs from the in-memory cart,
// adopts it and notifies subscribers. Unreadable storage keeps the in-memory cart.
// With plain kv.Store storage Refresh only returns the current cart.
func (s *Store) Refresh(ctx context.Context) Cart {
	s.touch()
	if _, ok := s.storage.(kv.Versioned); !ok {
		return s.Snapshot()
	}

	s.mu.Lock()
	next, outcome := s.load(ctx)
	if outcome == metrics.HydrateFailed || sameCart(s.cart, next) {
		current := s.cart.Clone()
		s.mu.Unlock()
		return current
	}
	s.cart = next

	s.dispatchMu.Lock()
	s.mu.Unlock()
	defer s.dispatchMu.Unlock()

	s.notify(next)
	return next.Clone()
}

func (s *Store) mutate(ctx context.Context, op string, fn func([]Line) []Line) Cart {
	s.touch()
	s.mu.Lock()
	next := s.apply(ctx, op, fn)
	s.cart = next
	s.metrics.IncMutation(op)

	s.dispatchMu.Lock()
	s.mu.Unlock()
	defer s.dispatchMu.Unlock()

	s.notify(next)
	return next.Clone()
}

// apply computes and persists the cart after fn. Callers hold s.mu.
func (s *Store) apply(ctx context.Context, op string, fn func([]Line) []Line) Cart {
	versioned, ok := s.storage.(kv.Versioned)
	if !ok {
		next := withLines(fn(s.cart.Items))
		s.persist(ctx, op, next)
		return next
	}

	var next Cart
	err := kv.UpdateWithRetry(ctx, versioned, s.key, maxUpdateAttempts, func(current string, found bool) (string, error) {
		base := Empty()
		if found {
			base, _ = s.decode(ctx, current)
		}
		next = withLines(fn(base.Items))
		return Encode(next)
	})
	if err != nil {
		s.persistFailed(ctx, op, err)
		return withLines(fn(s.cart.Items))
	}
	return next
}

func (s *Store) persist(ctx context.Context, op string, c Cart) {
	raw, err := Encode(c)
	if err == nil {
		err = s.storage.Set(ctx, s.key, raw)
	}
	if err != nil {
		s.persistFailed(ctx, op, err)
	}
}

func (s *Store) persistFailed(ctx context.Context, op string, err error) {
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{"cart_key": s.key, "op": op}), "persist cart snapshot", err)
	s.metrics.IncPersistFailure(op)
}

func (s *Store) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Store) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Store) subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func sameCart(a, b Cart) bool {
	ra, errA := Encode(a)
	rb, errB := Encode(b)
	return errA == nil && errB == nil && ra == rb
}

func (s *Store) notify(c Cart) {
	s.subsMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Cart), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(c.Clone())
	}
}
