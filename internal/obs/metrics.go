package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camguard_guard_decisions_total",
			Help: "Route guard outcomes by required role.",
		},
		[]string{"required_role", "outcome"},
	)

	tenantDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camguard_tenant_detections_total",
			Help: "Tenant detection lookups by result (match, none, platform, error, cache_hit).",
		},
		[]string{"result"},
	)

	provisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camguard_provisioning_total",
			Help: "User provisioning requests by requested role and result.",
		},
		[]string{"role", "result"},
	)

	roleCacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camguard_role_cache_loads_total",
			Help: "Role assignment lookups by source (cache, store, error).",
		},
		[]string{"source"},
	)

	streamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camguard_alert_stream_subscribers",
		Help: "Live alert stream subscribers.",
	})

	streamDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camguard_alert_stream_dropped_total",
			Help: "Alert events dropped because a subscriber's buffer was full.",
		},
		[]string{"kind"},
	)

	registerOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			guardDecisions, tenantDetections, provisioningTotal, roleCacheLoads,
			streamSubscribers, streamDropped,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGuardDecision counts a route guard outcome.
func ObserveGuardDecision(requiredRole, outcome string) {
	if requiredRole == "" {
		requiredRole = "none"
	}
	guardDecisions.WithLabelValues(requiredRole, outcome).Inc()
}

// ObserveTenantDetection counts a tenant detection result.
func ObserveTenantDetection(result string) {
	tenantDetections.WithLabelValues(result).Inc()
}

// ObserveProvisioning counts a provisioning attempt.
func ObserveProvisioning(role, result string) {
	provisioningTotal.WithLabelValues(role, result).Inc()
}

// ObserveRoleLoad counts where role assignments were served from.
func ObserveRoleLoad(source string) {
	roleCacheLoads.WithLabelValues(source).Inc()
}

// SetStreamSubscribers records the current number of alert stream subscribers.
func SetStreamSubscribers(n int) {
	streamSubscribers.Set(float64(n))
}

// ObserveStreamDrop counts an alert event a slow subscriber missed.
func ObserveStreamDrop(kind string) {
	streamDropped.WithLabelValues(kind).Inc()
}

// Instrument measures throughput, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// collections whose next path segment is a row identifier.
var idCollections = map[string]struct{}{
	"tenants": {},
	"clients": {},
	"cameras": {},
	"alerts":  {},
	"domains": {},
}

// keywords that can follow a collection without being identifiers.
var collectionKeywords = map[string]struct{}{
	"stream": {},
}

// CanonicalPath collapses identifiers so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		if _, ok := idCollections[parts[i-1]]; !ok {
			continue
		}
		if _, kw := collectionKeywords[parts[i]]; kw {
			continue
		}
		parts[i] = ":id"
	}
	return strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
