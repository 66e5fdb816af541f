package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Hydration outcomes recorded by CartMetrics.IncHydration.
const (
	HydrateRestored  = "restored"
	HydrateAbsent    = "absent"
	HydrateMalformed = "malformed"
	HydrateFailed    = "storage_error"
)

// CartMetrics records cart store activity. A nil *CartMetrics is a no-op.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	hydrations      *prometheus.CounterVec
	openSessions    prometheus.Gauge
	evictions       prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations applied, by operation.",
	}, []string{"op"})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_failures_total",
		Help: "Cart snapshot writes that failed, by operation.",
	}, []string{"op"})
	hydrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_hydrations_total",
		Help: "Cart store initialisations, by outcome.",
	}, []string{"outcome"})
	openSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cart_open_sessions",
		Help: "Cart stores currently held in memory.",
	})
	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_idle_evictions_total",
		Help: "Cart stores dropped from memory after sitting idle.",
	})
	reg.MustRegister(mutations, persistFailures, hydrations, openSessions, evictions)
	return &CartMetrics{
		mutations:       mutations,
		persistFailures: persistFailures,
		hydrations:      hydrations,
		openSessions:    openSessions,
		evictions:       evictions,
	}
}

func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (c *CartMetrics) IncPersistFailure(op string) {
	if c == nil || c.persistFailures == nil {
		return
	}
	c.persistFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

func (c *CartMetrics) IncHydration(outcome string) {
	if c == nil || c.hydrations == nil {
		return
	}
	c.hydrations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CartMetrics) SetOpenSessions(n int) {
	if c == nil || c.openSessions == nil {
		return
	}
	c.openSessions.Set(float64(n))
}

func (c *CartMetrics) AddIdleEvictions(n int) {
	if c == nil || c.evictions == nil || n <= 0 {
		return
	}
	c.evictions.Add(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
