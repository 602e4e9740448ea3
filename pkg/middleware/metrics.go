package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/message"
)

// UnmatchedRoute is the route label of requests that resolved to no leaf.
const UnmatchedRoute = "unmatched"

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "cinder").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "cinder",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors of one Prometheus middleware instance.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// NewMetrics registers the request collectors on the configured registry.
// Registering twice on one registry panics, as promauto does.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of dispatched requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Dispatch duration in seconds, handler included",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "method"}),

		requestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_errors_total",
			Help:        "Total number of requests that ended in a server error",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "kind"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of requests being dispatched",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Handle implements dispatch.Middleware.
func (m *Metrics) Handle(ctx context.Context, req *message.Request, resp *message.Response, next dispatch.Next) error {
	route := routeLabel(req)

	m.inFlight.Inc()
	start := time.Now()
	err := next(ctx)
	m.requestDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	m.inFlight.Dec()

	status := message.StatusOf(err, resp.Status)
	m.requestsTotal.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.requestErrors.WithLabelValues(route, errorKind(err)).Inc()
	}
	return err
}

// Prometheus creates middleware that collects request metrics.
//
// Metrics collected (default namespace):
//   - cinder_requests_total: Counter by route, method and status
//   - cinder_request_duration_seconds: Histogram by route and method
//   - cinder_request_errors_total: Counter of 5xx outcomes by route and kind
//   - cinder_requests_in_flight: Gauge
//
// The route label is the matched leaf's URL, so it stays bounded no matter
// what paths clients send.
func Prometheus(opts ...MetricsOption) dispatch.Middleware {
	return NewMetrics(opts...)
}

func routeLabel(req *message.Request) string {
	if req.Route == nil {
		return UnmatchedRoute
	}
	return req.Route.URL()
}
