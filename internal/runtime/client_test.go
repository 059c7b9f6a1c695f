package runtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/moltbot/moltproxy/pkg/types"
)

func newTestSupervisor(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", "127.0.0.1"), srv
}

func TestListProcesses(t *testing.T) {
	c, _ := newTestSupervisor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/processes" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"processes": []types.Process{
				{ID: "p1", Command: "bash start.sh", Status: types.ProcessRunning},
				{ID: "p2", Command: "sleep 1", Status: types.ProcessCompleted},
			},
		})
	})

	procs, err := c.ListProcesses(context.Background())
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("got %d processes, want 2", len(procs))
	}
	if procs[0].ID != "p1" || procs[0].Status != types.ProcessRunning {
		t.Errorf("procs[0] = %+v", procs[0])
	}
}

func TestListProcessesError(t *testing.T) {
	c, _ := newTestSupervisor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := c.ListProcesses(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error %q should carry the status", err)
	}
}

func TestStartProcess(t *testing.T) {
	c, _ := newTestSupervisor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/processes" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var spec types.StartSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			t.Errorf("decode spec: %v", err)
		}
		if spec.Command != "bash start.sh" {
			t.Errorf("spec.Command = %q", spec.Command)
		}
		if spec.Env["HOME"] != "/data" {
			t.Errorf("spec.Env = %v", spec.Env)
		}
		json.NewEncoder(w).Encode(types.Process{
			ID:      "spawned",
			Command: spec.Command,
			Status:  types.ProcessStarting,
			Labels:  spec.Labels,
		})
	})

	h, err := c.StartProcess(context.Background(), types.StartSpec{
		Command: "bash start.sh",
		Env:     map[string]string{"HOME": "/data"},
		Labels:  map[string]string{"moltbot.role": "gateway"},
	})
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	if h.Info().ID != "spawned" {
		t.Errorf("handle ID = %q", h.Info().ID)
	}
	if h.Info().Labels["moltbot.role"] != "gateway" {
		t.Errorf("labels = %v", h.Info().Labels)
	}
}

func TestKillAndLogs(t *testing.T) {
	var killed bool
	c, _ := newTestSupervisor(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/processes/p1/kill":
			killed = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/processes/p1/logs":
			json.NewEncoder(w).Encode(types.ProcessLogs{Stdout: "starting up", Stderr: "warn: no token"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	h := c.Attach(types.Process{ID: "p1"})
	if err := h.Kill(context.Background()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if !killed {
		t.Error("kill endpoint not hit")
	}

	logs, err := h.Logs(context.Background())
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if logs.Stdout != "starting up" || logs.Stderr != "warn: no token" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEnsureMount(t *testing.T) {
	var mounted bool
	c, _ := newTestSupervisor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/mounts" {
			mounted = true
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	if err := c.EnsureMount(context.Background()); err != nil {
		t.Fatalf("EnsureMount: %v", err)
	}
	if !mounted {
		t.Error("mount endpoint not hit")
	}
}

func TestWaitForPortReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port, _ := strconv.Atoi(strings.TrimPrefix(ln.Addr().String(), "127.0.0.1:"))

	c := NewClient("http://unused", "", "127.0.0.1")
	h := c.Attach(types.Process{ID: "p1"})

	if err := h.WaitForPort(context.Background(), port, 5*time.Second); err != nil {
		t.Fatalf("WaitForPort: %v", err)
	}
}

func TestWaitForPortTimeout(t *testing.T) {
	c := NewClient("http://unused", "", "127.0.0.1")
	h := c.Attach(types.Process{ID: "p1"})

	// Port 1 is never listening; a sub-interval timeout exits on the first
	// deadline check instead of sleeping through a poll cycle.
	err := h.WaitForPort(context.Background(), 1, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "not ready") {
		t.Errorf("error %q should report readiness timeout", err)
	}
}

func TestWaitForPortContextCanceled(t *testing.T) {
	c := NewClient("http://unused", "", "127.0.0.1")
	h := c.Attach(types.Process{ID: "p1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.WaitForPort(ctx, 1, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}
