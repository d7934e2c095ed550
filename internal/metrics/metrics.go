package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schedula"

// Collector is safe to use as a nil pointer; every method is then a no-op.
type Collector struct {
	BookingOutcomes       *prometheus.CounterVec
	AvailabilityCheckTime prometheus.Histogram
	GRPCRequestsTotal     *prometheus.CounterVec
	GRPCRequestDuration   *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		BookingOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "outcomes_total",
			Help:      "Booking workflow results by operation and outcome.",
		}, []string{"operation", "outcome"}),

		AvailabilityCheckTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "check_seconds",
			Help:      "Time spent deciding whether a slot is bookable.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		GRPCRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total gRPC requests by method and status code.",
		}, []string{"method", "code"}),

		GRPCRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "gRPC request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method"}),
	}
}

func (c *Collector) Outcome(operation, outcome string) {
	if c == nil {
		return
	}
	c.BookingOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) ObserveCheck(d time.Duration) {
	if c == nil {
		return
	}
	c.AvailabilityCheckTime.Observe(d.Seconds())
}

func (c *Collector) ObserveRPC(method, code string, d time.Duration) {
	if c == nil {
		return
	}
	c.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	c.GRPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
