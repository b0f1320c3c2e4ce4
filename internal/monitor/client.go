package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
)

// StatsClient queries a running fleetrecond instance for run statistics
type StatsClient struct {
	baseURL string
	client  *http.Client
}

// NewStatsClient creates a client for the daemon at baseURL
func NewStatsClient(baseURL string) *StatsClient {
	return &StatsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// FetchStats retrieves accumulated run statistics from the daemon
func (c *StatsClient) FetchStats(ctx context.Context) (httpapi.StatsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stats", nil)
	if err != nil {
		return httpapi.StatsResponse{}, fmt.Errorf("build stats request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return httpapi.StatsResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpapi.StatsResponse{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var stats httpapi.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return httpapi.StatsResponse{}, fmt.Errorf("decode stats response: %w", err)
	}

	return stats, nil
}

// CheckHealth probes the daemon's liveness endpoint
func (c *StatsClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return nil
}
