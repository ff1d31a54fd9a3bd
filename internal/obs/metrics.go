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

// HTTP metrics
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
)

// Permission core metrics
var (
	PermissionCacheRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockhelper_permission_cache_refreshes_total",
			Help: "Permission cache reloads by outcome.",
		},
		[]string{"outcome"},
	)

	PermissionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockhelper_permission_cache_lookups_total",
			Help: "Permission cache reads by result.",
		},
		[]string{"result"},
	)

	IDGenerationAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockhelper_id_generation_attempts",
		Help:    "Attempts needed to draw a non-colliding identifier.",
		Buckets: []float64{1, 2, 3, 5, 10},
	})

	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockhelper_login_attempts_total",
			Help: "Credential checks by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockhelper_build_info",
			Help: "Constant 1 labelled with the running version and commit.",
		},
		[]string{"version", "commit"},
	)
)

var initOnce sync.Once

// Init registers every collector in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			PermissionCacheRefreshes, PermissionCacheLookups, IDGenerationAttempts, LoginAttempts,
			buildInfo,
		)
	})
}

// SetBuildInfo publishes the running version.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight gauge.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		path := CanonicalPath(r.URL.Path)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 3 && parts[0] == "v1" && (parts[1] == "components" || parts[1] == "users") {
		return "/v1/" + parts[1] + "/:id"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
