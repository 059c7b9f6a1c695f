package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moltbot/moltproxy/internal/auth"
	"github.com/moltbot/moltproxy/internal/gateway"
	"github.com/moltbot/moltproxy/internal/proxy"
	"github.com/moltbot/moltproxy/internal/runtime"
	"github.com/moltbot/moltproxy/pkg/types"
)

type stubHandle struct {
	proc types.Process
}

func (h *stubHandle) Info() types.Process { return h.proc }
func (h *stubHandle) WaitForPort(ctx context.Context, port int, timeout time.Duration) error {
	return nil
}
func (h *stubHandle) Kill(ctx context.Context) error { return nil }
func (h *stubHandle) Logs(ctx context.Context) (*types.ProcessLogs, error) {
	return &types.ProcessLogs{}, nil
}

type stubRuntime struct {
	procs []types.Process
}

func (r *stubRuntime) ListProcesses(ctx context.Context) ([]types.Process, error) {
	return r.procs, nil
}

func (r *stubRuntime) StartProcess(ctx context.Context, spec types.StartSpec) (runtime.ProcessHandle, error) {
	p := types.Process{ID: "spawned", Command: spec.Command, Status: types.ProcessRunning, Labels: spec.Labels}
	r.procs = append(r.procs, p)
	return &stubHandle{proc: p}, nil
}

func (r *stubRuntime) Attach(p types.Process) runtime.ProcessHandle { return &stubHandle{proc: p} }
func (r *stubRuntime) EnsureMount(ctx context.Context) error        { return nil }

func newTestServer(rt runtime.Runtime, verifier *auth.Verifier) *Server {
	mgr := gateway.NewManager(rt, nil)
	gwProxy := proxy.New(mgr, "127.0.0.1:18789")
	return NewServer(mgr, rt, gwProxy, nil, verifier)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&stubRuntime{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminListProcesses(t *testing.T) {
	rt := &stubRuntime{procs: []types.Process{
		{ID: "p1", Command: gateway.StartCommand, Status: types.ProcessRunning},
	}}
	s := newTestServer(rt, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/processes", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		Processes []types.Process `json:"processes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Processes) != 1 || out.Processes[0].ID != "p1" {
		t.Errorf("processes = %+v", out.Processes)
	}
}

func TestAdminGatewayStatus(t *testing.T) {
	rt := &stubRuntime{procs: []types.Process{
		{ID: "gw", Command: gateway.StartCommand, Status: types.ProcessRunning},
	}}
	s := newTestServer(rt, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/gateway", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st types.GatewayStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running || st.Process == nil || st.Process.ID != "gw" {
		t.Errorf("status = %+v", st)
	}
	if st.Port != gateway.Port {
		t.Errorf("port = %d, want %d", st.Port, gateway.Port)
	}
}

func TestAdminGatewayStatusNotRunning(t *testing.T) {
	s := newTestServer(&stubRuntime{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/gateway", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var st types.GatewayStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running || st.Process != nil {
		t.Errorf("status = %+v, want not running", st)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	s := newTestServer(&stubRuntime{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/admin/gateway", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rec.Code)
	}
}

func TestAdminBackupNotConfigured(t *testing.T) {
	s := newTestServer(&stubRuntime{}, nil)

	for _, path := range []string{"/admin/backup", "/admin/restore"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("%s: status = %d, want 409 when backups are not configured", path, rec.Code)
		}
	}
}
