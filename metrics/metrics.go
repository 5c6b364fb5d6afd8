// Package metrics exposes Prometheus counters for the services and a small
// server to scrape them from.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PackageName is the metrics namespace shared by all binaries.
const PackageName = "ready_layer_two"

// Result labels.
const (
	ResultOK = "ok"
)

var (
	httpRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: PackageName,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "code"})

	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: PackageName,
		Name:      "operations_total",
		Help:      "Completed service operations by name and result.",
	}, []string{"operation", "result"})

	registryCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: PackageName,
		Name:      "registry_call_duration_seconds",
		Help:      "Duration of token verification calls to the participant registry.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
)

// RecordOperation counts a completed operation. An empty result counts as ok.
func RecordOperation(operation, result string) {
	if result == "" {
		result = ResultOK
	}
	operations.WithLabelValues(operation, result).Inc()
}

// ObserveRegistryCall records the latency of one registry call.
func ObserveRegistryCall(start time.Time, result string) {
	if result == "" {
		result = ResultOK
	}
	registryCalls.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// Middleware measures request latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server listening on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		httpRequests,
		operations,
		registryCalls,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the scrape handler.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
