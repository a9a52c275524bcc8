package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Business metrics
	LeadsReceived      prometheus.Counter
	AssignmentOutcomes *prometheus.CounterVec
	AssignmentDuration prometheus.Histogram
	RosterMutations    *prometheus.CounterVec

	// Dispatcher metrics
	DispatchQueueDepth prometheus.Gauge
	DispatchRetries    prometheus.Counter
	DispatchDropped    prometheus.Counter
	SweeperRequeued    prometheus.Counter

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Business metrics
		LeadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "leads_received_total",
			Help: "Total number of leads captured by the contact form",
		}),
		AssignmentOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_assignments_total",
				Help: "Assignment attempts by outcome",
			},
			[]string{"outcome"}, // assigned, no_eligible_broker, already_assigned, not_found, contention, error
		),
		AssignmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lead_assignment_duration_seconds",
			Help:    "Time spent inside the assignment transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		RosterMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roster_mutations_total",
				Help: "Roster administration changes by kind",
			},
			[]string{"kind"}, // enroll, disable, activate, reorder
		),

		// Dispatcher metrics
		DispatchQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assignment_queue_depth",
			Help: "Assignment tasks waiting for a worker",
		}),
		DispatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "assignment_retries_total",
			Help: "Assignment tasks retried after lock contention",
		}),
		DispatchDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assignment_dispatch_dropped_total",
			Help: "Assignment tasks rejected because the queue was full",
		}),
		SweeperRequeued: factory.NewCounter(prometheus.CounterOpts{
			Name: "pending_leads_requeued_total",
			Help: "Pending leads re-dispatched by the sweeper",
		}),

		// Database metrics
		DBConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		// Cache metrics
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/leads/:id

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordLeadReceived increments the intake counter
func (m *Metrics) RecordLeadReceived() {
	if m == nil {
		return
	}
	m.LeadsReceived.Inc()
}

// RecordAssignment counts one assignment attempt and its duration
func (m *Metrics) RecordAssignment(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AssignmentOutcomes.WithLabelValues(outcome).Inc()
	m.AssignmentDuration.Observe(duration.Seconds())
}

// RecordRosterMutation counts a roster administration change
func (m *Metrics) RecordRosterMutation(kind string) {
	if m == nil {
		return
	}
	m.RosterMutations.WithLabelValues(kind).Inc()
}

// SetQueueDepth updates the dispatcher queue gauge
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.DispatchQueueDepth.Set(float64(n))
}

// RecordDispatchRetry increments the retry counter
func (m *Metrics) RecordDispatchRetry() {
	if m == nil {
		return
	}
	m.DispatchRetries.Inc()
}

// RecordDispatchDropped increments the dropped task counter
func (m *Metrics) RecordDispatchDropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

// RecordSweeperRequeued adds n re-dispatched leads
func (m *Metrics) RecordSweeperRequeued(n int) {
	if m == nil {
		return
	}
	m.SweeperRequeued.Add(float64(n))
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}
