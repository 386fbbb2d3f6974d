package memory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one Manager. Each Manager gets
// its own registry so several can live in one process (tests, tools).
type Metrics struct {
	registry *prometheus.Registry

	Saves    *prometheus.CounterVec
	Forgets  prometheus.Counter
	Trimmed  prometheus.Counter
	Searches prometheus.Counter
	Flushes  prometheus.Counter
	Rebuilds prometheus.Histogram
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "saves_total",
			Help:      "Entries saved, by kind.",
		}, []string{"kind"}),
		Forgets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "forgets_total",
			Help:      "Long-term entries removed by forget.",
		}),
		Trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "trimmed_total",
			Help:      "Long-term entries dropped by the capacity policy.",
		}),
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "searches_total",
			Help:      "Index searches served.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "flushes_total",
			Help:      "Short-term windows flushed into the daily log.",
		}),
		Rebuilds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aide",
			Subsystem: "memory",
			Name:      "index_rebuild_seconds",
			Help:      "Duration of full index rebuilds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.Saves, m.Forgets, m.Trimmed, m.Searches, m.Flushes, m.Rebuilds)
	return m
}

// Registry returns the registry holding these collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
