package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queryTotal    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram
	activeSessions      prometheus.Gauge

	crmCredentialFallbacks prometheus.Counter
	cacheHits              prometheus.Counter
	cacheMisses            prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		metricsInst = &moduleMetrics{
			queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "backlot_queries_total",
				Help: "Total queries processed, by category and routing strategy",
			}, []string{"category", "strategy"}),
			queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "backlot_query_duration_seconds",
				Help:    "End-to-end query duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"category"}),
			providerCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "backlot_provider_calls_total",
				Help: "Model provider calls, by backend and outcome",
			}, []string{"backend", "outcome"}),
			providerCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "backlot_provider_call_duration_seconds",
				Help:    "Model provider call duration, by backend",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"backend"}),
			toolExecutionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "backlot_tool_executions_total",
				Help: "Tool executions, by tool",
			}, []string{"tool"}),
			toolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "backlot_tool_execution_duration_seconds",
				Help:    "Tool execution duration, by tool",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}, []string{"tool"}),
			toolErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "backlot_tool_errors_total",
				Help: "Tool execution errors, by tool",
			}, []string{"tool"}),
			sessionLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "backlot_session_load_duration_seconds",
				Help:    "Session load duration",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),
			sessionSaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "backlot_session_save_duration_seconds",
				Help:    "Session save duration",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "backlot_active_sessions",
				Help: "Active sessions in the store",
			}),
			crmCredentialFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "backlot_crm_credential_fallbacks_total",
				Help: "CRM requests that advanced past a failing credential",
			}),
			cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "backlot_cache_hits_total",
				Help: "Cache hits on tool lookups",
			}),
			cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "backlot_cache_misses_total",
				Help: "Cache misses on tool lookups",
			}),
		}

		registry.MustRegister(
			metricsInst.queryTotal,
			metricsInst.queryDuration,
			metricsInst.providerCallTotal,
			metricsInst.providerCallDuration,
			metricsInst.toolExecutionTotal,
			metricsInst.toolExecutionDuration,
			metricsInst.toolErrorsTotal,
			metricsInst.sessionLoadDuration,
			metricsInst.sessionSaveDuration,
			metricsInst.activeSessions,
			metricsInst.crmCredentialFallbacks,
			metricsInst.cacheHits,
			metricsInst.cacheMisses,
		)
	})
	return metricsInst
}

// EnsureRegistered initializes and registers all metrics
func EnsureRegistered() {
	getMetrics()
}

// Handler returns the /metrics HTTP handler
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordQuery records one processed query
func RecordQuery(category, strategy string, duration time.Duration) {
	m := getMetrics()
	m.queryTotal.WithLabelValues(category, strategy).Inc()
	m.queryDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordProviderCall records one model provider call
func RecordProviderCall(backend string, duration time.Duration, success bool) {
	m := getMetrics()
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.providerCallTotal.WithLabelValues(backend, outcome).Inc()
	m.providerCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordToolExecution records one tool execution
func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

// RecordSessionLoad records a session load duration
func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

// RecordSessionSave records a session save duration
func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// SetActiveSessions sets the active-session gauge
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordCRMCredentialFallback records a CRM credential failover
func RecordCRMCredentialFallback() {
	getMetrics().crmCredentialFallbacks.Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	getMetrics().cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	getMetrics().cacheMisses.Inc()
}
