// Package metrics exposes the operational counters/gauges/histograms an
// operator would scrape via Prometheus. Grounded directly on the
// teacher's metrics package (internal/infrastructure/metrics/metrics.go):
// same promauto package-level var pattern, renamed from clouddns_* to
// recurdns_*, with labels adjusted to this resolver's own dimensions
// (cache tier, server health) in place of the teacher's DB-connections
// and per-protocol query gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal tracks every query this instance has answered.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recurdns_queries_total",
		Help: "Total number of DNS queries processed, by query type and response code",
	}, []string{"qtype", "rcode"})

	// QueryDuration tracks end-to-end query handling latency.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recurdns_query_duration_seconds",
		Help:    "Histogram of query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"qtype"})

	// CacheOperations tracks L1 (in-process) and L2 (Redis) cache
	// hits/misses.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recurdns_cache_operations_total",
		Help: "Total number of cache hits and misses by tier",
	}, []string{"level", "result"})

	// ActiveWorkers tracks the size of the UDP/TCP handling worker pool.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recurdns_active_workers",
		Help: "Number of worker goroutines servicing the query queue",
	})

	// UpstreamsDown is the gauge for how many configured upstreams are
	// marked unreachable. It is registered here, but no code in this
	// module sets it, so it stays at 0.
	UpstreamsDown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recurdns_upstreams_down",
		Help: "Number of configured upstream servers currently marked down",
	})

	// BGPAnnounced is the gauge for whether this instance announces its
	// anycast VIP via GoBGP. It is registered here, but internal/routing
	// does not set it, so it stays at 0.
	BGPAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recurdns_bgp_announced",
		Help: "Binary indicator of BGP route announcement status (1 = announcing, 0 = withdrawn)",
	})
)

// Recorder implements internal/dns/server.Recorder over the package-level
// collectors above, so the server package depends on an interface it
// declares rather than on this package directly.
type Recorder struct{}

// ObserveQuery records one completed query's outcome and latency.
func (Recorder) ObserveQuery(qtype string, rcode string, duration time.Duration) {
	QueriesTotal.WithLabelValues(qtype, rcode).Inc()
	QueryDuration.WithLabelValues(qtype).Observe(duration.Seconds())
}

// IncWorkers adjusts the active-worker gauge by delta.
func (Recorder) IncWorkers(delta int) {
	ActiveWorkers.Add(float64(delta))
}

// CacheHit/CacheMiss record an L1 or L2 cache lookup outcome.
func CacheHit(level string)  { CacheOperations.WithLabelValues(level, "hit").Inc() }
func CacheMiss(level string) { CacheOperations.WithLabelValues(level, "miss").Inc() }
