// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/health-intel/internal/cache"
	"github.com/sells-group/health-intel/internal/ratelimit"
)

const (
	// OutcomeSuccess labels calls and assessments that completed cleanly.
	OutcomeSuccess = "success"
	// OutcomeError labels failed provider calls.
	OutcomeError = "error"
	// OutcomeDegraded labels assessments completed with failed providers.
	OutcomeDegraded = "degraded"
	// OutcomeAborted labels assessments discarded by their caller.
	OutcomeAborted = "aborted"
)

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "health_intel",
			Name:      "gateway_calls_total",
			Help:      "Provider gateway calls, partitioned by provider, outcome and cache source.",
		},
		[]string{"provider", "outcome", "source"},
	)

	gatewayErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "health_intel",
			Name:      "gateway_errors_total",
			Help:      "Normalized provider errors by provider and kind.",
		},
		[]string{"provider", "kind"},
	)

	assessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "health_intel",
			Name:      "assessments_total",
			Help:      "Assessments handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	assessmentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "health_intel",
			Name:      "assessment_seconds",
			Help:      "Assessment latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// Register attaches the collectors to reg. Already-registered collectors are
// tolerated so tests and multiple servers can share the default registry.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		gatewayCallsTotal,
		gatewayErrorsTotal,
		assessmentsTotal,
		assessmentDurationSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveGatewayCall counts one gateway call.
func ObserveGatewayCall(provider, outcome, source string) {
	gatewayCallsTotal.WithLabelValues(provider, outcome, source).Inc()
}

// ObserveGatewayError counts one normalized error.
func ObserveGatewayError(provider, kind string) {
	gatewayErrorsTotal.WithLabelValues(provider, kind).Inc()
}

// ObserveAssessment records an assessment's duration and outcome.
func ObserveAssessment(duration time.Duration, outcome string) {
	assessmentsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	assessmentDurationSeconds.Observe(duration.Seconds())
}

var (
	cacheOpsDesc = prometheus.NewDesc(
		"health_intel_cache_operations_total",
		"Response cache lookups by result.",
		[]string{"result"}, nil,
	)
	cacheEntriesDesc = prometheus.NewDesc(
		"health_intel_cache_entries",
		"Entries held in the in-memory cache tier.",
		nil, nil,
	)
)

// CacheCollector exports a response cache's cumulative counters.
type CacheCollector struct {
	stats func() cache.Stats
}

// NewCacheCollector reads counters from stats on every scrape.
func NewCacheCollector(stats func() cache.Stats) *CacheCollector {
	return &CacheCollector{stats: stats}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheOpsDesc
	ch <- cacheEntriesDesc
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Coalesced), "coalesced")
	ch <- prometheus.MustNewConstMetric(cacheOpsDesc, prometheus.CounterValue, float64(s.Evictions), "eviction")
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(s.Entries))
}

var (
	limiterQueueDesc = prometheus.NewDesc(
		"health_intel_limiter_queue_depth",
		"Provider calls waiting for a rate limit slot.",
		[]string{"provider"}, nil,
	)
	limiterIntervalDesc = prometheus.NewDesc(
		"health_intel_limiter_interval_seconds",
		"Minimum spacing between two provider call starts.",
		[]string{"provider"}, nil,
	)
)

// LimiterCollector exports per-provider rate limiter state.
type LimiterCollector struct {
	limiters func() []*ratelimit.Limiter
}

// NewLimiterCollector reads limiters on every scrape.
func NewLimiterCollector(limiters func() []*ratelimit.Limiter) *LimiterCollector {
	return &LimiterCollector{limiters: limiters}
}

// Describe implements prometheus.Collector.
func (c *LimiterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- limiterQueueDesc
	ch <- limiterIntervalDesc
}

// Collect implements prometheus.Collector.
func (c *LimiterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, l := range c.limiters() {
		ch <- prometheus.MustNewConstMetric(limiterQueueDesc, prometheus.GaugeValue, float64(l.Len()), l.Name())
		ch <- prometheus.MustNewConstMetric(limiterIntervalDesc, prometheus.GaugeValue, l.Interval().Seconds(), l.Name())
	}
}
