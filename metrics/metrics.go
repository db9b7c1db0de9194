// Package metrics exports the server core's Prometheus instrumentation:
// gauges for session/channel/reverse-connect counts, a counter for
// housekeeping ticks, and a histogram for iterate wait durations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the server core reports through. It is
// safe to register against any prometheus.Registerer, including the
// default global one.
type Metrics struct {
	Sessions         prometheus.Gauge
	Channels         prometheus.Gauge
	ReverseConnects  prometheus.Gauge
	HousekeepingTick prometheus.Counter
	IterateWait      prometheus.Histogram
}

// New builds a Metrics bundle with the opcua_core namespace and registers
// every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua_core",
			Name:      "sessions_current",
			Help:      "Number of currently open sessions.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua_core",
			Name:      "channels_current",
			Help:      "Number of currently open secure channels.",
		}),
		ReverseConnects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua_core",
			Name:      "reverse_connects_current",
			Help:      "Number of registered reverse-connect entries.",
		}),
		HousekeepingTick: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua_core",
			Name:      "housekeeping_ticks_total",
			Help:      "Number of housekeeping cycles run.",
		}),
		IterateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opcua_core",
			Name:      "iterate_wait_seconds",
			Help:      "Observed wait duration of each run_iterate call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(m.Sessions, m.Channels, m.ReverseConnects, m.HousekeepingTick, m.IterateWait)
	return m
}

// ObserveIterate records how long one run_iterate call waited.
func (m *Metrics) ObserveIterate(d time.Duration) {
	m.IterateWait.Observe(d.Seconds())
}

// SetSessions, SetChannels, and SetReverseConnects publish the server
// core's statistics snapshot. They, together with IncHousekeepingTick and
// ObserveIterate, satisfy server.Recorder so a *Metrics can be handed to
// server.WithRecorder without this package being imported by server.
func (m *Metrics) SetSessions(n int)        { m.Sessions.Set(float64(n)) }
func (m *Metrics) SetChannels(n int)        { m.Channels.Set(float64(n)) }
func (m *Metrics) SetReverseConnects(n int) { m.ReverseConnects.Set(float64(n)) }

// IncHousekeepingTick records one completed housekeeping cycle.
func (m *Metrics) IncHousekeepingTick() { m.HousekeepingTick.Inc() }
