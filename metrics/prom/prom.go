// Package prom exports the cache's Metrics signals as Prometheus series:
// hit/miss/eviction/load/batch counters, size gauges, and a derived
// hit-ratio gauge.
package prom

import (
	"sync/atomic"

	"github.com/mthomsen/coalesce/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter feeds cache.Metrics callbacks into Prometheus. All methods are
// safe for concurrent use — every underlying Prometheus type is, and the
// ratio bookkeeping is atomic.
type Adapter struct {
	// Lookup traffic.
	hits   prometheus.Counter
	misses prometheus.Counter

	// hitRatio is derived from hitCount/missCount: a prometheus.Counter
	// cannot be read back, so the ratio keeps its own atomic tallies
	// instead of reusing hits/misses above.
	hitRatio  prometheus.Gauge
	hitCount  atomic.Uint64
	missCount atomic.Uint64

	// Evictions, labelled by reason (policy / ttl / capacity).
	evicts *prometheus.CounterVec

	// Loader activity.
	loads      prometheus.Counter
	batchCalls prometheus.Counter
	batchKeys  prometheus.Counter

	// Residency.
	sizeEnt  prometheus.Gauge
	sizeCost prometheus.Gauge
}

// New builds an Adapter and registers its collectors on reg (the default
// registerer when reg is nil). ns and sub become the Prometheus namespace
// and subsystem of every series; constLabels, if non-nil, is attached to
// all of them.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts(opts(name, help)))
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts(opts(name, help)))
	}

	a := &Adapter{
		hits:       counter("hits_total", "Lookups answered from the cache"),
		misses:     counter("misses_total", "Lookups that found no fresh entry"),
		hitRatio:   gauge("hit_ratio", "hits / (hits + misses) as of the last lookup; 0 before any traffic"),
		evicts:     prometheus.NewCounterVec(prometheus.CounterOpts(opts("evictions_total", "Entries evicted, by reason")), []string{"reason"}),
		loads:      counter("loads_total", "Unary loader invocations (one per single-flight leader)"),
		batchCalls: counter("batch_calls_total", "Batch loader invocations (one per flushed batch)"),
		batchKeys:  counter("batch_keys_total", "Keys served across all flushed batches"),
		sizeEnt:    gauge("size_entries", "Resident entry count"),
		sizeCost:   gauge("size_cost", "Total resident cost"),
	}
	reg.MustRegister(a.hits, a.misses, a.hitRatio, a.evicts, a.loads, a.batchCalls, a.batchKeys, a.sizeEnt, a.sizeCost)
	return a
}

// Hit records a lookup served from the cache.
func (a *Adapter) Hit() {
	a.hits.Inc()
	a.hitCount.Add(1)
	a.updateHitRatio()
}

// Miss records a lookup that found nothing fresh.
func (a *Adapter) Miss() {
	a.misses.Inc()
	a.missCount.Add(1)
	a.updateHitRatio()
}

func (a *Adapter) updateHitRatio() {
	hits := a.hitCount.Load()
	total := hits + a.missCount.Load()
	if total == 0 {
		a.hitRatio.Set(0)
		return
	}
	a.hitRatio.Set(float64(hits) / float64(total))
}

// Evict records an eviction under its reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	label := "policy"
	switch r {
	case cache.EvictTTL:
		label = "ttl"
	case cache.EvictCapacity:
		label = "capacity"
	}
	a.evicts.WithLabelValues(label).Inc()
}

// Load records one unary loader invocation.
func (a *Adapter) Load() { a.loads.Inc() }

// BatchCall records one batch loader invocation serving n keys.
func (a *Adapter) BatchCall(n int) {
	a.batchCalls.Inc()
	a.batchKeys.Add(float64(n))
}

// Size publishes the current entry count and total cost.
func (a *Adapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(cost))
}

var _ cache.Metrics = (*Adapter)(nil)
