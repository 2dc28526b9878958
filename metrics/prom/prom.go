// Package prom exports cache metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/lazycache/metrics"
)

// Adapter implements metrics.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   *prometheus.CounterVec
	heals    prometheus.Counter
	computes *prometheus.HistogramVec
	sizeEnt  prometheus.Gauge
	sizeCost prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:   counter("hits_total", "Store lookups that found a live entry"),
		misses: counter("misses_total", "Store lookups that found nothing"),
		heals:  counter("type_heals_total", "Slots evicted because they were cached for another type"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Store evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		computes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "factory_duration_seconds",
				Help:        "Value factory run time by outcome",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"outcome"},
		),
		sizeEnt:  gauge("size_entries", "Resident entries"),
		sizeCost: gauge("size_units", "Accounted size of resident entries"),
	}
	reg.MustRegister(a.hits, a.misses, a.heals, a.evicts, a.computes, a.sizeEnt, a.sizeCost)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(reason string) { a.evicts.WithLabelValues(reason).Inc() }

// Size updates the entry and size gauges.
func (a *Adapter) Size(entries int, size int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(size))
}

// Compute observes one factory run.
func (a *Adapter) Compute(o metrics.Outcome, d time.Duration) {
	a.computes.WithLabelValues(o.String()).Observe(d.Seconds())
}

// Heal increments the type-mismatch recovery counter.
func (a *Adapter) Heal() { a.heals.Inc() }

var _ metrics.Metrics = (*Adapter)(nil)
