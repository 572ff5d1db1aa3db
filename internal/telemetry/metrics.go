package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the faults this package swallows. Every drop, failed flush
// and discarded batch is visible here even though producers never see an
// error.
type Metrics struct {
	EventsPersisted  prometheus.Counter
	EventsDropped    *prometheus.CounterVec
	FlushFailures    prometheus.Counter
	BatchesDiscarded prometheus.Counter
}

// Drop reasons for the telemetry_events_dropped_total counter.
const (
	DropReasonDraining = "draining"
	DropReasonOverflow = "overflow"
)

// NewMetrics builds and registers the tracker's counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_persisted_total",
			Help: "Events successfully written to the store.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_events_dropped_total",
			Help: "Events dropped before reaching the store.",
		}, []string{"reason"}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_flush_failures_total",
			Help: "Flush attempts that failed and requeued their batch.",
		}),
		BatchesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_batches_discarded_total",
			Help: "Batches discarded after exhausting flush retries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsPersisted, m.EventsDropped, m.FlushFailures, m.BatchesDiscarded)
	}
	return m
}
