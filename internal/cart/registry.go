package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kv"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// RegistryParams configures a Registry.
type RegistryParams struct {
	Storage   kv.Store
	KeyPrefix string
	Logger    *logger.Logger
	Metrics   *metrics.CartMetrics
}

// Registry hands out exactly one Store per cart session within a process. Stores for
// the same session in other processes stay consistent through kv.Versioned storage;
// idle stores are dropped by EvictIdle or Run and re-hydrate on the next Open.
type Registry struct {
	storage kv.Store
	prefix  string
	logg    *logger.Logger
	metrics *metrics.CartMetrics

	mu     sync.Mutex
	stores map[string]*Store
	group  singleflight.Group
}

func NewRegistry(p RegistryParams) *Registry {
	r := &Registry{
		storage: p.Storage,
		prefix:  strings.TrimSpace(p.KeyPrefix),
		logg:    p.Logger,
		metrics: p.Metrics,
		stores:  make(map[string]*Store),
	}
	if r.storage == nil {
		r.storage = kv.NewMemory()
	}
	if r.prefix == "" {
		r.prefix = DefaultKeyPrefix
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	return r
}

// KeyFor returns the storage key for sessionID.
func (r *Registry) KeyFor(sessionID string) string {
	return r.prefix + ":" + sessionID
}

// Open returns the Store for sessionID, hydrating it from storage the first time.
// Concurrent first calls share a single hydration.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session id is required")
	}
	if st, ok := r.lookup(sessionID); ok {
		st.touch()
		return st, nil
	}

	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		if st, ok := r.lookup(sessionID); ok {
			return st, nil
		}
		st := NewStore(context.WithoutCancel(ctx), StoreParams{
			Key:     r.KeyFor(sessionID),
			Storage: r.storage,
			Logger:  r.logg,
			Metrics: r.metrics,
		})
		r.mu.Lock()
		r.stores[sessionID] = st
		n := len(r.stores)
		r.mu.Unlock()
		r.metrics.SetOpenSessions(n)
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Evict drops the in-memory Store for sessionID. The persisted snapshot is kept and
// the next Open hydrates from it.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	delete(r.stores, sessionID)
	n := len(r.stores)
	r.mu.Unlock()
	r.metrics.SetOpenSessions(n)
}

// EvictIdle drops every store not opened or mutated since cutoff, except stores with
// live subscribers, and returns how many were dropped.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	evicted := 0
	for id, st := range r.stores {
		if st.idleSince().Before(cutoff) && st.subscribers() == 0 {
			delete(r.stores, id)
			evicted++
		}
	}
	n := len(r.stores)
	r.mu.Unlock()

	r.metrics.SetOpenSessions(n)
	r.metrics.AddIdleEvictions(evicted)
	return evicted
}

// Run evicts stores idle for longer than idle once per interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.EvictIdle(now.Add(-idle)); n > 0 {
				r.logg.Info(r.logg.WithFields(ctx, map[string]any{"evicted": n, "open": r.Len()}), "evicted idle cart stores")
			}
		}
	}
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) lookup(sessionID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[sessionID]
	return st, ok
}
