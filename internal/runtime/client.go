package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/moltbot/moltproxy/pkg/types"
)

const portPollInterval = 500 * time.Millisecond

// Client talks to the sandbox supervisor's process-management API.
type Client struct {
	baseURL     string
	token       string
	sandboxAddr string // host reachable for TCP readiness probes, e.g. "127.0.0.1"
	httpClient  *http.Client
}

// NewClient creates a supervisor client. sandboxAddr is the host used for
// port-readiness dials against processes inside the sandbox.
func NewClient(baseURL, token, sandboxAddr string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		sandboxAddr: sandboxAddr,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SandboxAddr returns the host used for readiness probes.
func (c *Client) SandboxAddr() string {
	return c.sandboxAddr
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("supervisor %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode supervisor response: %w", err)
	}
	return nil
}

// ListProcesses returns all process records in the supervisor's listing order.
func (c *Client) ListProcesses(ctx context.Context) ([]types.Process, error) {
	var out struct {
		Processes []types.Process `json:"processes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/processes", nil, &out); err != nil {
		return nil, err
	}
	return out.Processes, nil
}

// StartProcess spawns a process and returns its handle.
func (c *Client) StartProcess(ctx context.Context, spec types.StartSpec) (ProcessHandle, error) {
	var proc types.Process
	if err := c.doJSON(ctx, http.MethodPost, "/v1/processes", spec, &proc); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}
	return &Handle{proc: proc, client: c}, nil
}

// Attach wraps a listed process record in a handle.
func (c *Client) Attach(p types.Process) ProcessHandle {
	return &Handle{proc: p, client: c}
}

// EnsureMount asks the supervisor to attach the persistent storage mount.
func (c *Client) EnsureMount(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mounts", nil, nil); err != nil {
		return fmt.Errorf("ensure mount: %w", err)
	}
	return nil
}

// Handle is the HTTP-backed ProcessHandle implementation.
type Handle struct {
	proc   types.Process
	client *Client
}

// Info returns the process record this handle was created from.
func (h *Handle) Info() types.Process {
	return h.proc
}

// WaitForPort polls a TCP connect against the sandbox address until the
// port accepts or the timeout elapses. The deadline is fixed up front, so
// a caller racing another starter never cuts the wait short.
func (h *Handle) WaitForPort(ctx context.Context, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(h.client.sandboxAddr, fmt.Sprintf("%d", port))
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		d := net.Dialer{Timeout: portPollInterval}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("wait for port %d: %w", port, ctx.Err())
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("process %s: port %d not ready after %s: %w",
				h.proc.ID, port, timeout, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for port %d: %w", port, ctx.Err())
		case <-time.After(portPollInterval):
		}
	}
}

// Kill requests termination of the process.
func (h *Handle) Kill(ctx context.Context) error {
	if err := h.client.doJSON(ctx, http.MethodPost, "/v1/processes/"+h.proc.ID+"/kill", nil, nil); err != nil {
		return fmt.Errorf("kill process %s: %w", h.proc.ID, err)
	}
	return nil
}

// Logs fetches the captured stdout/stderr of the process.
func (h *Handle) Logs(ctx context.Context) (*types.ProcessLogs, error) {
	var logs types.ProcessLogs
	if err := h.client.doJSON(ctx, http.MethodGet, "/v1/processes/"+h.proc.ID+"/logs", nil, &logs); err != nil {
		return nil, fmt.Errorf("logs for process %s: %w", h.proc.ID, err)
	}
	return &logs, nil
}
