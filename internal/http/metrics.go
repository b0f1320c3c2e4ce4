package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/fleetrecon/internal/http"

// HTTPMetrics records request counts, latency, response sizes, and in-flight
// requests for the fleetrecond API. Instruments that fail to register are
// left nil and skipped at record time, so metrics problems never fail
// requests.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *logging.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the HTTP instruments on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.Nop()
	}

	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var errs [4]error

	m.requestsTotal, errs[0] = m.meter.Int64Counter(
		"fleetrecon.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint, and status code."),
		metric.WithUnit("{request}"),
	)
	m.requestDur, errs[1] = m.meter.Float64Histogram(
		"fleetrecon.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, endpoint, and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	m.responseSize, errs[2] = m.meter.Int64Histogram(
		"fleetrecon.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes. Reconcile responses dominate; large payloads track fleet size."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	m.activeRequests, errs[3] = m.meter.Int64UpDownCounter(
		"fleetrecon.http.active_requests",
		metric.WithDescription("HTTP requests currently in flight"),
		metric.WithUnit("{request}"),
	)

	if err := errors.Join(errs[:]...); err != nil {
		m.logger.Underlying().Warn("failed to register http metrics", zap.Error(err))
	}
}

// MetricsMiddleware records request count, duration, response size, and
// in-flight gauge movement for every handled request.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
			}

			start := time.Now()
			err := next(c)
			m.finish(c, time.Since(start))
			return err
		}
	}
}

// finish records the per-request measurements once the handler has run.
func (m *HTTPMetrics) finish(c echo.Context, elapsed time.Duration) {
	// All routes are fixed paths, so the route template is safe as a
	// metric label.
	attrs := metric.WithAttributes(
		attribute.String("method", c.Request().Method),
		attribute.String("endpoint", c.Path()),
		attribute.Int("status", c.Response().Status),
	)

	ctx := c.Request().Context()
	if m.requestsTotal != nil {
		m.requestsTotal.Add(ctx, 1, attrs)
	}
	if m.requestDur != nil {
		m.requestDur.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.responseSize != nil {
		m.responseSize.Record(ctx, c.Response().Size, attrs)
	}
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1)
	}
}
