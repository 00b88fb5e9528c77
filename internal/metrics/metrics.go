// Package metrics holds the Prometheus collectors for the store and the
// autosave loop. A nil collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timebox"

// Store counts plan reads and merges on the server.
type Store struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewStore(reg prometheus.Registerer) *Store {
	m := &Store{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "plan_operations_total",
			Help:      "Day plan store operations by kind and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "plan_operation_duration_seconds",
			Help:      "Day plan store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration)
	}
	return m
}

// Observe records one operation; result is "ok", "absent" or "error".
func (m *Store) Observe(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Store) Ops() *prometheus.CounterVec { return m.ops }

// Autosave counts what the client-side sync loop decided to do.
type Autosave struct {
	Loads      *prometheus.CounterVec
	Writes     *prometheus.CounterVec
	Suppressed prometheus.Counter
	Debounced  prometheus.Counter
}

func NewAutosave(reg prometheus.Registerer) *Autosave {
	m := &Autosave{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "loads_total",
			Help:      "Plan loads by result (found, absent, error, stale).",
		}, []string{"result"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "writes_total",
			Help:      "Debounced plan writes by result (ok, error).",
		}, []string{"result"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "suppressed_total",
			Help:      "Changes dropped because no key was loaded.",
		}),
		Debounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "debounced_total",
			Help:      "Changes folded into a later write.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Loads, m.Writes, m.Suppressed, m.Debounced)
	}
	return m
}

func (m *Autosave) Load(result string) {
	if m != nil {
		m.Loads.WithLabelValues(result).Inc()
	}
}

func (m *Autosave) Write(result string) {
	if m != nil {
		m.Writes.WithLabelValues(result).Inc()
	}
}

func (m *Autosave) Suppress() {
	if m != nil {
		m.Suppressed.Inc()
	}
}

func (m *Autosave) Debounce() {
	if m != nil {
		m.Debounced.Inc()
	}
}
