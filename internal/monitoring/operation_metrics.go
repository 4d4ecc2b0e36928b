package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/secret-bridge/internal/allowance"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

// OperationMetrics is fed by orchestrator status notifications. A change
// with an empty From marks the moment an operation starts being tracked.
type OperationMetrics struct {
	transitions     *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	settleDuration  *prometheus.HistogramVec
	cacheOperations *prometheus.CounterVec
}

func NewOperationMetrics() *OperationMetrics {
	return &OperationMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secret_bridge_operation_transitions_total",
				Help: "Total number of operation status transitions",
			},
			[]string{"direction", "from", "to"},
		),

		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "secret_bridge_operations_in_flight",
				Help: "Number of tracked operations that have not reached a terminal status",
			},
			[]string{"direction"},
		),

		settleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secret_bridge_operation_settle_duration_seconds",
				Help:    "Time from creation to a terminal status",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"direction", "status"},
		),

		cacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secret_bridge_cache_operations_total",
				Help: "Total number of cache operations",
			},
			[]string{"cache_type", "operation"}, // operation: hit, miss, invalidate
		),
	}
}

func (m *OperationMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.transitions,
		m.inFlight,
		m.settleDuration,
		m.cacheOperations,
	)
}

func (m *OperationMetrics) Observe(change model.StatusChange) {
	direction := string(change.Operation.Direction)

	if change.From == "" {
		if !change.To.IsTerminal() {
			m.inFlight.WithLabelValues(direction).Inc()
		}
		return
	}

	m.transitions.WithLabelValues(direction, string(change.From), string(change.To)).Inc()
	if change.To.IsTerminal() && !change.From.IsTerminal() {
		m.inFlight.WithLabelValues(direction).Dec()
		if !change.Operation.CreatedAt.IsZero() {
			m.settleDuration.WithLabelValues(direction, string(change.To)).
				Observe(change.At.Sub(change.Operation.CreatedAt).Seconds())
		}
	}
}

// Consume observes changes until the channel is closed or ctx is done.
func (m *OperationMetrics) Consume(ctx context.Context, changes <-chan model.StatusChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.Observe(change)
		}
	}
}

func (m *OperationMetrics) RecordCacheOperation(cacheType, operation string) {
	m.cacheOperations.WithLabelValues(cacheType, operation).Inc()
}

// InstrumentedAllowanceCache counts hits and misses of the allowance cache.
type InstrumentedAllowanceCache struct {
	wrapped allowance.ICache
	metrics *OperationMetrics
}

func NewInstrumentedAllowanceCache(wrapped allowance.ICache, metrics *OperationMetrics) *InstrumentedAllowanceCache {
	return &InstrumentedAllowanceCache{wrapped: wrapped, metrics: metrics}
}

func (c *InstrumentedAllowanceCache) Get(owner, spender, asset string) (model.AllowanceSnapshot, bool) {
	snapshot, ok := c.wrapped.Get(owner, spender, asset)
	if ok {
		c.metrics.RecordCacheOperation("allowance", "hit")
	} else {
		c.metrics.RecordCacheOperation("allowance", "miss")
	}
	return snapshot, ok
}

func (c *InstrumentedAllowanceCache) Set(snapshot model.AllowanceSnapshot) {
	c.wrapped.Set(snapshot)
}

func (c *InstrumentedAllowanceCache) Invalidate(owner, spender, asset string) {
	c.metrics.RecordCacheOperation("allowance", "invalidate")
	c.wrapped.Invalidate(owner, spender, asset)
}

var _ allowance.ICache = (*InstrumentedAllowanceCache)(nil)
