// Package main implements the shared HTTP plumbing subcommands use to call
// the fleetrecond API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin JSON client over the fleetrecond HTTP API. Commands
// build one per invocation with a timeout suited to the call.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient(timeout time.Duration) *apiClient {
	return &apiClient{base: serverURL, hc: &http.Client{Timeout: timeout}}
}

// getJSON fetches path and decodes the response into out.
func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	return c.do(req, out)
}

// postJSON sends in as a JSON body to path and decodes the response into out.
func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// apiError turns a non-200 response into an error carrying the server's
// message when one is present. Echo wraps errors as {"message": ...}.
func apiError(resp *http.Response) error {
	path := resp.Request.URL.Path
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, payload.Message)
	}
	return fmt.Errorf("%s returned %s: %s", path, resp.Status, bytes.TrimSpace(body))
}
