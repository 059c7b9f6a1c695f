// Package client is a small HTTP client for the moltproxy admin API,
// used by the moltctl CLI and by integrations that manage the gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moltbot/moltproxy/pkg/types"
)

// Client is an HTTP client for the moltproxy admin API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new admin API client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // restart waits out a full gateway cold start
		},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// GatewayStatus returns the current gateway process state.
func (c *Client) GatewayStatus(ctx context.Context) (*types.GatewayStatus, error) {
	var st types.GatewayStatus
	if err := c.doJSON(ctx, http.MethodGet, "/admin/gateway", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListProcesses returns every process the sandbox supervisor reports.
func (c *Client) ListProcesses(ctx context.Context) ([]types.Process, error) {
	var out struct {
		Processes []types.Process `json:"processes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/admin/processes", nil, &out); err != nil {
		return nil, err
	}
	return out.Processes, nil
}

// RestartGateway kills any live gateway process and starts a fresh one.
func (c *Client) RestartGateway(ctx context.Context) (*types.GatewayStatus, error) {
	var st types.GatewayStatus
	if err := c.doJSON(ctx, http.MethodPost, "/admin/gateway/restart", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RunBackup triggers an immediate backup run.
func (c *Client) RunBackup(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/admin/backup", nil, nil)
}

// RestoreBackup restores an archive into the data directory. An empty key
// restores the most recent archive.
func (c *Client) RestoreBackup(ctx context.Context, key string) error {
	body := map[string]string{"key": key}
	return c.doJSON(ctx, http.MethodPost, "/admin/restore", body, nil)
}
