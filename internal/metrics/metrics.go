package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Solves counts finished solves by outcome
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "visitplan_solves_total", Help: "Solves by outcome."},
		[]string{"status"},
	)
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "visitplan_solve_duration_seconds", Help: "Wall time of a solve in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
		[]string{"status"},
	)
	BnBNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "visitplan_bnb_nodes", Help: "Branch-and-bound nodes explored per solve.", Buckets: prometheus.ExponentialBuckets(1, 4, 10)},
	)
	// JobsInFlight is the number of asynchronous solves running
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{Name: "visitplan_jobs_in_flight", Help: "Asynchronous solves running."})

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Solves, SolveDuration, BnBNodes, JobsInFlight)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// SolveObserver records solver outcomes; it satisfies opt.Observer.
type SolveObserver struct{}

func (SolveObserver) ObserveSolve(status string, elapsed time.Duration, nodes int) {
	Solves.WithLabelValues(status).Inc()
	SolveDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if nodes > 0 {
		BnBNodes.Observe(float64(nodes))
	}
}

// ObserveWebhook records one delivery attempt.
func ObserveWebhook(eventType, outcome string, latencyMs int) {
	WebhookDeliveries.WithLabelValues(eventType, outcome).Inc()
	WebhookLatency.WithLabelValues(eventType, outcome).Observe(float64(latencyMs))
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, code).Inc()
	HTTPDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
}
