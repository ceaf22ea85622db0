package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Total number of order status transition attempts.",
		},
		[]string{"from", "to", "outcome"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Total number of checkout attempts.",
		},
		[]string{"outcome"},
	)

	checkoutValue = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "order_value",
			Help:      "Total value of successfully placed orders.",
			Buckets:   prometheus.ExponentialBuckets(1, 2.5, 10), // 1 to ~9.5k
		},
	)

	couponApplications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "coupons",
			Name:      "applications_total",
			Help:      "Total number of coupon application attempts.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		orderTransitions,
		checkouts,
		checkoutValue,
		couponApplications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOrderTransition records one order status transition attempt.
func RecordOrderTransition(from, to, outcome string) {
	orderTransitions.WithLabelValues(from, to, outcome).Inc()
}

// RecordCheckout records one checkout attempt and, on success, the order value.
func RecordCheckout(outcome string, total float64) {
	checkouts.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		checkoutValue.Observe(total)
	}
}

// RecordCouponApplication records one coupon application attempt.
func RecordCouponApplication(outcome string) {
	couponApplications.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifier segments so the path label stays low
// cardinality.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "orders", "products", "coupons", "tickets", "delivery-windows", "users":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
