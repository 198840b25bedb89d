// Package metrics exposes prometheus instrumentation for the monitoring loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the monitor reports into.
type Metrics struct {
	CyclesTotal       prometheus.Counter
	CyclesSkipped     prometheus.Counter
	EventsChecked     prometheus.Counter
	EventsFailed      *prometheus.CounterVec
	DropsDetected     prometheus.Counter
	SnapshotsWritten  prometheus.Counter
	CycleInFlight     prometheus.Gauge
	CycleDurationSecs prometheus.Histogram
}

// New registers the collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatcher_cycles_total",
			Help: "Monitoring cycles started.",
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatcher_cycles_skipped_total",
			Help: "Scheduler ticks skipped because a cycle was still running.",
		}),
		EventsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatcher_events_checked_total",
			Help: "Tracked events successfully checked.",
		}),
		EventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatcher_events_failed_total",
			Help: "Tracked-event checks that failed, by cause.",
		}, []string{"cause"}),
		DropsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatcher_drops_detected_total",
			Help: "Price drops recorded.",
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatcher_snapshots_written_total",
			Help: "Price snapshots recorded.",
		}),
		CycleInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seatwatcher_cycle_in_flight",
			Help: "1 while a monitoring cycle is running.",
		}),
		CycleDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seatwatcher_cycle_duration_seconds",
			Help:    "Wall time per monitoring cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CyclesTotal,
			m.CyclesSkipped,
			m.EventsChecked,
			m.EventsFailed,
			m.DropsDetected,
			m.SnapshotsWritten,
			m.CycleInFlight,
			m.CycleDurationSecs,
		)
	}
	return m
}

// NewUnregistered builds collectors without registering them; test helper.
func NewUnregistered() *Metrics {
	return New(nil)
}
