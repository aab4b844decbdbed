package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	RecordsCreatedTotal    prometheus.Counter
	RecordValidationFailed prometheus.Counter
	UploadsTotal           *prometheus.CounterVec
	StoredDocumentsSkipped prometheus.Counter
}

// NewCollector registers all instruments on reg under the given namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		RecordsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "created_total",
			Help:      "Medical records written through the create form.",
		}),

		RecordValidationFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "validation_failed_total",
			Help:      "Create submissions rejected by field validation.",
		}),

		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "total",
			Help:      "Uploaded documents by result (accepted, rejected).",
		}, []string{"result"}),

		StoredDocumentsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "skipped_documents_total",
			Help:      "Stored files left out of listings because they did not parse.",
		}),
	}
}

func (c *Collector) RecordCreated() {
	if c != nil {
		c.RecordsCreatedTotal.Inc()
	}
}

func (c *Collector) ValidationFailed() {
	if c != nil {
		c.RecordValidationFailed.Inc()
	}
}

func (c *Collector) UploadAccepted() {
	if c != nil {
		c.UploadsTotal.WithLabelValues("accepted").Inc()
	}
}

func (c *Collector) UploadRejected() {
	if c != nil {
		c.UploadsTotal.WithLabelValues("rejected").Inc()
	}
}

func (c *Collector) DocumentSkipped() {
	if c != nil {
		c.StoredDocumentsSkipped.Inc()
	}
}

// Middleware counts and times every request by its route template.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c == nil {
				return next(ctx)
			}
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
