package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridehub_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// NotificationsDispatched counts Notify calls by how they ended
	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridehub_notifications_dispatched_total",
			Help: "Notification dispatch results",
		},
		[]string{"outcome"},
	)

	PushSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridehub_push_sends_total",
			Help: "Push gateway calls by result",
		},
		[]string{"result"},
	)

	// RealtimeConnections tracks live websocket sessions per channel kind
	RealtimeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridehub_realtime_connections",
			Help: "Open realtime connections",
		},
		[]string{"channel"},
	)

	DroppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridehub_realtime_dropped_frames_total",
			Help: "Frames dropped because a member's outbound queue was full",
		},
	)

	// BackgroundTasksRejected counts after-commit work the worker pool refused
	BackgroundTasksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridehub_background_tasks_rejected_total",
			Help: "Background tasks refused by the worker pool",
		},
		[]string{"task"},
	)
)

var workerPoolDesc = prometheus.NewDesc(
	"ridehub_worker_pool_workers",
	"Worker pool occupancy by state",
	[]string{"state"}, nil,
)

// WorkerPoolCollector reads pool occupancy on every scrape.
type WorkerPoolCollector struct {
	stats func() map[string]int
}

// NewWorkerPoolCollector exposes the running, free and cap counts returned by stats.
func NewWorkerPoolCollector(stats func() map[string]int) *WorkerPoolCollector {
	return &WorkerPoolCollector{stats: stats}
}

func (c *WorkerPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- workerPoolDesc
}

func (c *WorkerPoolCollector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.stats() {
		ch <- prometheus.MustNewConstMetric(workerPoolDesc, prometheus.GaugeValue, float64(n), state)
	}
}

// RegisterWorkerPool adds the pool gauges to the default registry.
func RegisterWorkerPool(stats func() map[string]int) {
	prometheus.MustRegister(NewWorkerPoolCollector(stats))
}

func Init() {
	prometheus.MustRegister(
		HTTPRequests,
		RequestDuration,
		NotificationsDispatched,
		PushSends,
		RealtimeConnections,
		DroppedFrames,
		BackgroundTasksRejected,
	)
}

// Middleware records request counts and latency keyed by route path.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			code := c.Response().Status
			if err != nil {
				code = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					code = he.Code
				}
			}

			path := c.Path()
			method := c.Request().Method
			HTTPRequests.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
			RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
