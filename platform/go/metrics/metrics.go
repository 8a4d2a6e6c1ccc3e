// Package metrics holds the Prometheus collectors of the access layer.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and tools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "palmyra"

// Metrics groups the collectors shared by the security, tenant, gateway and orchestrator packages.
type Metrics struct {
	accessDecisions *prometheus.CounterVec
	securityEvents  *prometheus.CounterVec
	eventSinkErrors prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	cacheRefreshes  *prometheus.CounterVec
	gatewayOps      *prometheus.CounterVec
	outboundCalls   *prometheus.CounterVec
	outboundLatency *prometheus.HistogramVec
	outboundRetries *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		accessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "access_decisions_total",
			Help:      "Access decisions taken by the security validator.",
		}, []string{"check", "outcome"}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Security events recorded, by type.",
		}, []string{"type"}),
		eventSinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "event_sink_errors_total",
			Help:      "Security events that could not be written to the sink.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant_cache",
			Name:      "lookups_total",
			Help:      "Tenant cache lookups, by result.",
		}, []string{"result"}),
		cacheRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant_cache",
			Name:      "background_refreshes_total",
			Help:      "Background tenant refreshes triggered by cache hits.",
		}, []string{"outcome"}),
		gatewayOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scopeddb",
			Name:      "operations_total",
			Help:      "Scoped data access operations.",
		}, []string{"collection", "operation", "outcome"}),
		outboundCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "calls_total",
			Help:      "Outbound calls executed by the orchestrator.",
		}, []string{"name", "outcome"}),
		outboundLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "call_duration_seconds",
			Help:      "End-to-end duration of outbound calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
		outboundRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "retries_total",
			Help:      "Retries of transient outbound failures.",
		}, []string{"name"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "rate_limited_total",
			Help:      "Outbound calls rejected by the per-tenant rate limiter.",
		}, []string{"name"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "allowed"
	}
	return "denied"
}

// ObserveAccess counts an access decision for check.
func (m *Metrics) ObserveAccess(check string, allowed bool) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(check, outcome(allowed)).Inc()
}

// ObserveEvent counts a recorded security event.
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType).Inc()
}

// ObserveSinkError counts an audit write that failed.
func (m *Metrics) ObserveSinkError() {
	if m == nil {
		return
	}
	m.eventSinkErrors.Inc()
}

// ObserveCacheLookup counts a tenant cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheRefresh counts a completed background refresh.
func (m *Metrics) ObserveCacheRefresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheRefreshes.WithLabelValues(result).Inc()
}

// ObserveGateway counts a scoped data access operation.
func (m *Metrics) ObserveGateway(collection, operation, result string) {
	if m == nil {
		return
	}
	m.gatewayOps.WithLabelValues(collection, operation, result).Inc()
}

// ObserveCall records the outcome and duration of an outbound call.
func (m *Metrics) ObserveCall(name, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.outboundCalls.WithLabelValues(name, result).Inc()
	m.outboundLatency.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveRetry counts a retry of name.
func (m *Metrics) ObserveRetry(name string) {
	if m == nil {
		return
	}
	m.outboundRetries.WithLabelValues(name).Inc()
}

// ObserveRateLimited counts a rate limiter rejection for name.
func (m *Metrics) ObserveRateLimited(name string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(name).Inc()
}
