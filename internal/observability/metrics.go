package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

const namespace = "recs"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiInflight  prometheus.Gauge
	apiRecServed *prometheus.CounterVec

	recRequests  *prometheus.CounterVec
	recLatency   *prometheus.HistogramVec
	recFallback  *prometheus.CounterVec
	recItems     prometheus.Histogram
	confidence   *prometheus.HistogramVec
	droppedItems *prometheus.CounterVec

	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	chainHops        *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec

	cacheOps           *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	feedback *prometheus.CounterVec

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide metrics once. It returns nil when metrics are disabled,
// and every method is a no-op on a nil receiver.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New(prometheus.NewRegistry())
		log.Info("metrics initialized", "namespace", namespace)
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// New registers all collectors on reg; tests pass a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		apiRecServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_recommendations_served_total",
			Help: "Recommendation responses written to clients by route/source/cache hit/fallback reason.",
		}, []string{"route", "source", "cache_hit", "fallback_reason"}),
		recRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recommendation_requests_total",
			Help: "Recommendation requests by source/chain/type.",
		}, []string{"source", "chain", "type"}),
		recLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recommendation_duration_seconds",
			Help:    "End-to-end recommendation latency by source.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"source"}),
		recFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recommendation_fallback_total",
			Help: "Responses served without a provider ranking, by reason.",
		}, []string{"reason"}),
		recItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recommendation_items",
			Help:    "Items per recommendation response.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recommendation_confidence",
			Help:    "Calibrated item confidence by source.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"source"}),
		droppedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_dropped_items_total",
			Help: "Provider items rejected by the validator, by provider.",
		}, []string{"provider"}),
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_attempts_total",
			Help: "Provider attempts by provider/outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_attempt_duration_seconds",
			Help:    "Provider attempt latency by provider/outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"provider", "outcome"}),
		chainHops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "chain_hops_total",
			Help: "Chain node transitions by chain/node/outcome.",
		}, []string{"chain", "node", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Limiter rejections by node/scope.",
		}, []string{"node", "scope"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
		}, []string{"provider"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_operations_total",
			Help: "Result cache operations by op/result.",
		}, []string{"op", "result"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_invalidations_total",
			Help: "Cache entries removed by tag kind/trigger.",
		}, []string{"kind", "trigger"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feedback_total",
			Help: "Recommendation feedback by action.",
		}, []string{"action"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "Redis reachability (1 up, 0 down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Last redis ping latency in seconds.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiRecServed,
		m.recRequests, m.recLatency, m.recFallback, m.recItems, m.confidence, m.droppedItems,
		m.providerAttempts, m.providerLatency, m.chainHops, m.rateLimited, m.breakerState,
		m.cacheOps, m.cacheInvalidations, m.feedback,
		m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

// TrackInflight moves the in-flight gauge by delta.
func (m *Metrics) TrackInflight(delta int) {
	if m == nil {
		return
	}
	m.apiInflight.Add(float64(delta))
}

// ObserveServed counts a recommendation response as the client saw it.
func (m *Metrics) ObserveServed(route, source string, cacheHit bool, fallbackReason string) {
	if m == nil {
		return
	}
	if fallbackReason == "" {
		fallbackReason = "none"
	}
	m.apiRecServed.WithLabelValues(orUnknown(route), orUnknown(source), strconv.FormatBool(cacheHit), fallbackReason).Inc()
}

func (m *Metrics) ObserveRecommendation(source, chainID, recType string, items int, dur time.Duration) {
	if m == nil {
		return
	}
	source = orUnknown(source)
	m.recRequests.WithLabelValues(source, orUnknown(chainID), orUnknown(recType)).Inc()
	m.recLatency.WithLabelValues(source).Observe(dur.Seconds())
	m.recItems.Observe(float64(items))
}

func (m *Metrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.recFallback.WithLabelValues(orUnknown(reason)).Inc()
}

func (m *Metrics) ObserveConfidence(source string, confidence float64) {
	if m == nil {
		return
	}
	m.confidence.WithLabelValues(orUnknown(source)).Observe(confidence)
}

func (m *Metrics) AddDroppedItems(provider string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedItems.WithLabelValues(orUnknown(provider)).Add(float64(n))
}

func (m *Metrics) ObserveProviderAttempt(provider, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	provider, outcome = orUnknown(provider), orUnknown(outcome)
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (m *Metrics) IncChainHop(chainID, node, outcome string) {
	if m == nil {
		return
	}
	m.chainHops.WithLabelValues(orUnknown(chainID), orUnknown(node), orUnknown(outcome)).Inc()
}

func (m *Metrics) IncRateLimited(node, scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(orUnknown(node), orUnknown(scope)).Inc()
}

func (m *Metrics) SetBreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(orUnknown(provider)).Set(float64(state))
}

func (m *Metrics) IncCache(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(orUnknown(op), orUnknown(result)).Inc()
}

func (m *Metrics) AddCacheInvalidations(kind, trigger string, n int) {
	if m == nil {
		return
	}
	m.cacheInvalidations.WithLabelValues(orUnknown(kind), orUnknown(trigger)).Add(float64(n))
}

func (m *Metrics) IncFeedback(action string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(orUnknown(action)).Inc()
}

// StartRedisCollector pings rdb on an interval and records reachability.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					log.Warn("metrics: redis ping failed", "error", err)
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
