package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
)

// sourceNames holds the export endpoints in fetch order.
var sourceNames = []string{"installations", "incidents", "returns"}

// Client pulls CSV source exports from a fleet platform API
// authenticated with OAuth2 client credentials.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates an authenticated export client. The returned client
// refreshes its access token automatically; ctx bounds token requests
// for the lifetime of the client.
func NewClient(ctx context.Context, cfg config.RemoteConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base_url not set")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("remote token_url not set")
	}
	if cfg.ClientID == "" || !cfg.ClientSecret.IsSet() {
		return nil, fmt.Errorf("remote client credentials not set")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Value(),
		TokenURL:     cfg.TokenURL,
	}
	httpc := cc.Client(ctx)
	if d := cfg.Timeout.Duration(); d > 0 {
		httpc.Timeout = d
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   httpc,
	}, nil
}

// FetchSources downloads the three source exports.
func (c *Client) FetchSources(ctx context.Context) (*Sources, error) {
	tables := make(map[string]*dataset.Table, len(sourceNames))
	for _, name := range sourceNames {
		table, err := c.fetchTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables[name] = table
	}
	return &Sources{
		Installations: tables["installations"],
		Incidents:     tables["incidents"],
		Returns:       tables["returns"],
	}, nil
}

func (c *Client) fetchTable(ctx context.Context, name string) (*dataset.Table, error) {
	url := fmt.Sprintf("%s/exports/%s.csv", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", name, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	table, err := DecodeTable(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return table, nil
}
