package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
)

// newTestMetrics builds HTTPMetrics over a manual reader so tests can
// collect what the middleware recorded.
func newTestMetrics() (*HTTPMetrics, *metric.ManualReader) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: logging.Nop(),
	}
	m.init()
	return m, reader
}

func serveRequest(e *echo.Echo, method, path string) {
	req := httptest.NewRequest(method, path, nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func metricByName(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	m, reader := newTestMetrics()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/reconcile", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	serveRequest(e, http.MethodGet, "/health")
	serveRequest(e, http.MethodGet, "/health")
	serveRequest(e, http.MethodPost, "/api/v1/reconcile")

	rm := collectMetrics(t, reader)

	requests, ok := metricByName(rm, "fleetrecon.http.requests_total")
	if !ok {
		t.Fatal("requests counter not found")
	}
	sum, ok := requests.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("requests counter data = %T, want Sum[int64]", requests.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("requests total = %d, want 3", total)
	}

	// The reconcile request shows up under its route template with the
	// final status.
	if !hasDataPoint(sum.DataPoints, http.MethodPost, "/api/v1/reconcile", http.StatusOK, 1) {
		t.Errorf("no datapoint for POST /api/v1/reconcile 200: %+v", sum.DataPoints)
	}
	if !hasDataPoint(sum.DataPoints, http.MethodGet, "/health", http.StatusOK, 2) {
		t.Errorf("no datapoint for GET /health 200 with value 2: %+v", sum.DataPoints)
	}

	duration, ok := metricByName(rm, "fleetrecon.http.request_duration_seconds")
	if !ok {
		t.Fatal("duration histogram not found")
	}
	if hist, ok := duration.Data.(metricdata.Histogram[float64]); ok {
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != 3 {
			t.Errorf("duration recordings = %d, want 3", count)
		}
	} else {
		t.Errorf("duration data = %T, want Histogram[float64]", duration.Data)
	}

	if _, ok := metricByName(rm, "fleetrecon.http.response_size_bytes"); !ok {
		t.Error("no fleetrecon.http.response_size_bytes in collected metrics")
	}

	// Every request that started also finished.
	active, ok := metricByName(rm, "fleetrecon.http.active_requests")
	if !ok {
		t.Fatal("active requests gauge not found")
	}
	if sum, ok := active.Data.(metricdata.Sum[int64]); ok {
		var balance int64
		for _, dp := range sum.DataPoints {
			balance += dp.Value
		}
		if balance != 0 {
			t.Errorf("active requests balance = %d, want 0", balance)
		}
	}
}

// hasDataPoint reports whether a datapoint with the given method, endpoint,
// status, and value exists.
func hasDataPoint(dps []metricdata.DataPoint[int64], method, endpoint string, status int, value int64) bool {
	for _, dp := range dps {
		m, _ := dp.Attributes.Value(attribute.Key("method"))
		e, _ := dp.Attributes.Value(attribute.Key("endpoint"))
		s, _ := dp.Attributes.Value(attribute.Key("status"))
		if m.AsString() == method && e.AsString() == endpoint && s.AsInt64() == int64(status) && dp.Value == value {
			return true
		}
	}
	return false
}

func TestNewHTTPMetrics_NilLogger(t *testing.T) {
	m := NewHTTPMetrics(nil)
	if m == nil {
		t.Fatal("NewHTTPMetrics(nil) returned nil")
	}

	// Middleware stays usable even with the global no-op meter.
	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	serveRequest(e, http.MethodGet, "/health")
}
