package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CloudSink mirrors data points to a hosted metrics service.
// *aws.MetricPublisher satisfies it.
type CloudSink interface {
	PutCount(ctx context.Context, name string, value float64, dims map[string]string) error
	PutDuration(ctx context.Context, name string, d time.Duration, dims map[string]string) error
}

// Recorder tracks relay outcomes and HTTP traffic.
type Recorder struct {
	registry *prometheus.Registry
	sink     CloudSink
	log      *slog.Logger

	relayOutcomes   *prometheus.CounterVec
	vendorDuration  *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds a Recorder with its own registry. sink may be nil.
func New(sink CloudSink, log *slog.Logger) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sink:     sink,
		log:      log,
		relayOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_outcomes_total",
				Help: "Relay invocations by classified outcome",
			},
			[]string{"outcome"},
		),
		vendorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendor_call_duration_seconds",
				Help:    "Duration of outbound vendor calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}
	r.registry.MustRegister(r.relayOutcomes, r.vendorDuration, r.requestsTotal, r.requestDuration)
	return r
}

// ObserveOutcome counts one classified relay outcome.
func (r *Recorder) ObserveOutcome(ctx context.Context, outcome string) {
	r.relayOutcomes.WithLabelValues(outcome).Inc()
	if r.sink == nil {
		return
	}
	if err := r.sink.PutCount(ctx, "RelayOutcome", 1, map[string]string{"Outcome": outcome}); err != nil {
		r.log.Warn("cloud metric publish failed", "metric", "RelayOutcome", "error", err)
	}
}

// ObserveVendorCall records the latency of one vendor call.
func (r *Recorder) ObserveVendorCall(ctx context.Context, endpoint string, d time.Duration) {
	r.vendorDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	if r.sink == nil {
		return
	}
	if err := r.sink.PutDuration(ctx, "VendorCallDuration", d, map[string]string{"Endpoint": endpoint}); err != nil {
		r.log.Warn("cloud metric publish failed", "metric", "VendorCallDuration", "error", err)
	}
}

// Middleware records request counts and latency per route.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		r.requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		r.requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
