// Package observability exposes prometheus instrumentation for the cache
// coordinator.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "runcache"

// Metrics groups the coordinator's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	lookups      *prometheus.CounterVec
	storeReads   *prometheus.CounterVec
	storeWrites  *prometheus.CounterVec
	resolverCall *prometheus.CounterVec
	reused       prometheus.Counter
	clears       prometheus.Counter
	entries      prometheus.Gauge
	opDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Node lookups served, by cache result.",
			},
			[]string{"result"},
		),
		storeReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "reads_total",
				Help:      "Last-run queries sent to the run store.",
			},
			[]string{"status"},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "run_writes_total",
				Help:      "Runs submitted to the run store, by outcome.",
			},
			[]string{"status"},
		),
		resolverCall: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "calls_total",
				Help:      "Batched calls to the expected-config resolver.",
			},
			[]string{"status"},
		),
		reused: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "reused_total",
				Help:      "Completed runs whose expected config was reused from the cache.",
			},
		),
		clears: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "clears_total",
				Help:      "Explicit cache clears.",
			},
		),
		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Node keys currently present in the cache.",
			},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Coordinator operation duration including lock wait.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(
		m.lookups, m.storeReads, m.storeWrites, m.resolverCall,
		m.reused, m.clears, m.entries, m.opDuration,
	)
	return m
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordLookups counts cache hits and misses of one GetLastRuns call.
func (m *Metrics) RecordLookups(hits, misses int) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues("hit").Add(float64(hits))
	m.lookups.WithLabelValues("miss").Add(float64(misses))
}

// RecordStoreRead counts one ReadLastRuns call.
func (m *Metrics) RecordStoreRead(ok bool) {
	if m == nil {
		return
	}
	m.storeReads.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordStoreWrites counts per-run upsert outcomes.
func (m *Metrics) RecordStoreWrites(ok, failed int) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues("ok").Add(float64(ok))
	m.storeWrites.WithLabelValues("error").Add(float64(failed))
}

// RecordResolverCall counts one batched Resolve call.
func (m *Metrics) RecordResolverCall(ok bool) {
	if m == nil {
		return
	}
	m.resolverCall.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordReuse counts runs reconciled without a resolver round trip.
func (m *Metrics) RecordReuse(n int) {
	if m == nil {
		return
	}
	m.reused.Add(float64(n))
}

// RecordClear counts one ClearCache call.
func (m *Metrics) RecordClear() {
	if m == nil {
		return
	}
	m.clears.Inc()
}

// SetEntries publishes the current number of cache keys.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}

// ObserveOperation records how long a coordinator operation took.
func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}
