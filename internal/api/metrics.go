package api

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

const (
	unmatched = "unmatched"

	// noModel labels requests that never reached a backend.
	noModel = "none"

	// compareLabel marks requests answered by every trained backend.
	compareLabel = "compare"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrouter_http_requests_total",
			Help: "Total number of HTTP requests by route, status and backend served.",
		},
		[]string{"method", "path", "status", "model_used"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelrouter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route and backend served.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "model_used"},
	)

	predictedPrice = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelrouter_predicted_price_dollars",
			Help:    "Distribution of predicted prices by backend.",
			Buckets: prometheus.ExponentialBuckets(25_000, 2, 8),
		},
		[]string{"model_used"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, predictedPrice)
}

// modelLabel is filled in by a handler once it knows which backend (or
// ensemble) answered, and read back by metricsMiddleware.
type modelLabel struct{ id string }

type modelLabelKey struct{}

// markModelUsed records the backend that served r. It is a no-op outside
// metricsMiddleware.
func markModelUsed(r *http.Request, id string) {
	if l, ok := r.Context().Value(modelLabelKey{}).(*modelLabel); ok && id != "" {
		l.id = id
	}
}

// metricsMiddleware records request count and duration for every HTTP
// request, keyed by chi route pattern and the backend the handler marked.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		label := &modelLabel{id: noModel}
		r = r.WithContext(context.WithValue(r.Context(), modelLabelKey{}, label))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status), label.id).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, label.id).Observe(time.Since(start).Seconds())
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
