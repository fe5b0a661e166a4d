package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spiderlib/fetch"
)

// Collector records download attempts as Prometheus metrics. It implements
// fetch.AttemptSink and is safe for concurrent use.
type Collector struct {
	// attemptsTotal counts attempts by host key and outcome.
	attemptsTotal *prometheus.CounterVec

	// latencySeconds tracks the transport-phase latency per host.
	latencySeconds *prometheus.HistogramVec
}

// Compile-time interface check.
var _ fetch.AttemptSink = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg falls back to the default Prometheus registerer. The namespace
// prefixes all metric names (e.g. "crawler_fetch_attempts_total").
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Download attempts by host and outcome.",
			},
			[]string{"host", "outcome"},
		),
		latencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_attempt_duration_seconds",
				Help:      "Transport-phase latency of download attempts.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"host"},
		),
	}

	for _, col := range []prometheus.Collector{c.attemptsTotal, c.latencySeconds} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Record implements fetch.AttemptSink.
func (c *Collector) Record(a fetch.Attempt) {
	c.attemptsTotal.WithLabelValues(a.Host, string(a.Outcome)).Inc()
	c.latencySeconds.WithLabelValues(a.Host).Observe(a.Latency.Seconds())
}

// RegisterInFlight exposes the downloader's in-flight gauge through reg.
// The stats function is polled at scrape time.
func RegisterInFlight(reg prometheus.Registerer, namespace string, stats func() fetch.Stats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight_requests",
			Help:      "Requests currently holding a limiter permit.",
		},
		func() float64 {
			return float64(stats().InFlight)
		},
	))
}
