package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fleetrecon/internal/aggregate"
	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

func TestNewStatsClient(t *testing.T) {
	client := NewStatsClient("http://localhost:9090")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:9090", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestNewStatsClient_TrimsTrailingSlash(t *testing.T) {
	client := NewStatsClient("http://localhost:9090/")
	assert.Equal(t, "http://localhost:9090", client.baseURL)
}

func TestStatsClient_FetchStats_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)

		mttf := 417.5
		response := httpapi.StatsResponse{
			TotalRuns:  12,
			CacheHits:  4,
			FailedRuns: 1,
			LastRun: &httpapi.RunStats{
				RunID:             "run-20240601-abcdef12",
				Trigger:           "watch",
				Finished:          time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
				DurationMS:        850,
				SourceRows:        pipeline.SourceRows{Installations: 100, Incidents: 10, Returns: 5},
				InvalidSerials:    2,
				DuplicatesRemoved: 3,
				Summary: aggregate.Summary{
					TotalDevices: 95,
					MTTFDays:     &mttf,
				},
			},
			RecentDurationsMS: []int64{900, 850},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	stats, err := client.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TotalRuns)
	assert.Equal(t, 4, stats.CacheHits)
	assert.Equal(t, 1, stats.FailedRuns)
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, "run-20240601-abcdef12", stats.LastRun.RunID)
	assert.Equal(t, "watch", stats.LastRun.Trigger)
	assert.Equal(t, 95, stats.LastRun.Summary.TotalDevices)
	require.NotNil(t, stats.LastRun.Summary.MTTFDays)
	assert.InDelta(t, 417.5, *stats.LastRun.Summary.MTTFDays, 0.01)
	assert.Equal(t, []int64{900, 850}, stats.RecentDurationsMS)
}

func TestStatsClient_FetchStats_NoRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(httpapi.StatsResponse{})
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	stats, err := client.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)
	assert.Nil(t, stats.LastRun)
}

func TestStatsClient_FetchStats_Timeout(t *testing.T) {
	// Handler stalls until the client gives up.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.FetchStats(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestStatsClient_FetchStats_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("pipeline unavailable"))
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	_, err := client.FetchStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 500")
}

func TestStatsClient_FetchStats_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_runs": `))
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	_, err := client.FetchStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode stats response")
}

func TestStatsClient_CheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(httpapi.HealthResponse{Status: "ok"})
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	err := client.CheckHealth(context.Background())
	assert.NoError(t, err)
}

func TestStatsClient_CheckHealth_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewStatsClient(server.URL)
	err := client.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 503")
}
