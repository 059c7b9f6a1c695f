package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/moltbot/moltproxy/internal/metrics"
	"github.com/moltbot/moltproxy/internal/runtime"
	"github.com/moltbot/moltproxy/pkg/types"
)

// Manager ensures exactly one gateway process is running and reachable.
//
// The supervisor's process table is the single source of truth; this
// manager holds no persistent state of its own. Concurrent callers are
// serialized through one in-flight Ensure whose result fans out to every
// waiter, so a burst of requests never races two spawns within this
// instance.
type Manager struct {
	rt  runtime.Runtime
	env map[string]string

	mu       sync.Mutex
	inflight *ensureCall
}

type ensureCall struct {
	done   chan struct{}
	handle runtime.ProcessHandle
	err    error
}

// NewManager creates a lifecycle manager. env is the container-facing
// environment for freshly spawned gateways (see BuildContainerEnv).
func NewManager(rt runtime.Runtime, env map[string]string) *Manager {
	return &Manager{rt: rt, env: env}
}

// FindExisting returns the first non-terminal gateway process in the
// supervisor's listing, if any. Listing failure is logged and treated as
// "no process found" so transient supervisor errors fall through to a
// fresh start instead of blocking traffic.
func (m *Manager) FindExisting(ctx context.Context) (types.Process, bool) {
	procs, err := m.rt.ListProcesses(ctx)
	if err != nil {
		log.Printf("gateway: failed to list processes, assuming none: %v", err)
		return types.Process{}, false
	}
	for _, p := range procs {
		if !isGatewayProcess(p) {
			continue
		}
		if p.Status == types.ProcessStarting || p.Status == types.ProcessRunning {
			return p, true
		}
	}
	return types.Process{}, false
}

// waitForExisting waits for port readiness on a pre-existing process using
// the full startup timeout. On timeout the stuck process is killed
// (best-effort) and (nil, nil) is returned so the caller starts a
// replacement. A canceled context says nothing about the process, which
// keeps running; it is never killed on cancellation.
func (m *Manager) waitForExisting(ctx context.Context, p types.Process) (runtime.ProcessHandle, error) {
	h := m.rt.Attach(p)
	err := h.WaitForPort(ctx, Port, StartupTimeout)
	if err == nil {
		return h, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Printf("gateway: existing process %s never became ready, killing it: %v", p.ID, err)
	if killErr := h.Kill(ctx); killErr != nil {
		log.Printf("gateway: failed to kill stuck process %s: %v", p.ID, killErr)
	}
	return nil, nil
}

// FailedProcessLogs returns the captured output of the most recent failed
// gateway process, scanning the listing last-first. Returns nil if none is
// found or retrieval fails. The handle from the original StartProcess can
// become unusable for log retrieval after an early exit; re-resolving the
// process through the listing is the supported path.
func (m *Manager) FailedProcessLogs(ctx context.Context) *types.ProcessLogs {
	procs, err := m.rt.ListProcesses(ctx)
	if err != nil {
		log.Printf("gateway: failed to list processes for log lookup: %v", err)
		return nil
	}
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if !isGatewayProcess(p) || p.Status != types.ProcessFailed {
			continue
		}
		logs, err := m.rt.Attach(p).Logs(ctx)
		if err != nil {
			log.Printf("gateway: failed to fetch logs for %s: %v", p.ID, err)
			return nil
		}
		return logs
	}
	return nil
}

// Ensure returns a handle to a ready gateway process, starting or
// restarting one as needed. Concurrent callers share a single attempt.
// The attempt runs detached from every caller's context: a client that
// hangs up stops waiting, but the readiness wait itself always consumes
// its full timeout and a starting process is never killed on hang-up.
func (m *Manager) Ensure(ctx context.Context) (runtime.ProcessHandle, error) {
	m.mu.Lock()
	call := m.inflight
	if call == nil {
		call = &ensureCall{done: make(chan struct{})}
		m.inflight = call
		go m.runEnsure(call)
	}
	m.mu.Unlock()

	select {
	case <-call.done:
		return call.handle, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) runEnsure(call *ensureCall) {
	t0 := time.Now()
	call.handle, call.err = m.ensure(context.Background())

	outcome := "ok"
	if call.err != nil {
		outcome = "error"
	}
	metrics.EnsureAttempts.WithLabelValues(outcome).Inc()
	metrics.EnsureDuration.Observe(time.Since(t0).Seconds())

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
	close(call.done)
}

// ensure runs the full sequence: mount storage, reuse or restart an
// existing process, or spawn fresh and await readiness.
func (m *Manager) ensure(ctx context.Context) (runtime.ProcessHandle, error) {
	// Storage absence must never block gateway availability.
	if err := m.rt.EnsureMount(ctx); err != nil {
		log.Printf("gateway: storage mount unavailable, continuing without: %v", err)
	}

	if existing, ok := m.FindExisting(ctx); ok {
		log.Printf("gateway: found existing process %s (status=%s), waiting for port %d",
			existing.ID, existing.Status, Port)
		h, err := m.waitForExisting(ctx, existing)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		metrics.Restarts.Inc()
		// Dead existing process is recoverable: fall through to a fresh start.
	}

	log.Printf("gateway: starting new process: %s", StartCommand)
	h, err := m.rt.StartProcess(ctx, types.StartSpec{
		Command: StartCommand,
		Env:     m.env,
		Labels:  map[string]string{RoleLabel: RoleGateway},
	})
	if err != nil {
		// The spawn call itself was rejected; nothing to diagnose beyond it.
		return nil, fmt.Errorf("gateway: spawn rejected: %w", err)
	}

	if err := h.WaitForPort(ctx, Port, StartupTimeout); err != nil {
		return nil, m.startupError(ctx, err)
	}

	if logs, logErr := h.Logs(ctx); logErr == nil {
		log.Printf("gateway: process %s ready on port %d\nstdout: %s\nstderr: %s",
			h.Info().ID, Port, logs.Stdout, logs.Stderr)
	} else {
		log.Printf("gateway: process %s ready on port %d (logs unavailable: %v)",
			h.Info().ID, Port, logErr)
	}
	return h, nil
}

// Restart kills any live gateway process and runs a fresh Ensure. The
// restart counter moves only when a live process was actually killed; a
// restart request against nothing is just an Ensure.
func (m *Manager) Restart(ctx context.Context) (runtime.ProcessHandle, error) {
	if existing, ok := m.FindExisting(ctx); ok {
		log.Printf("gateway: restart requested, killing process %s", existing.ID)
		if err := m.rt.Attach(existing).Kill(ctx); err != nil {
			log.Printf("gateway: failed to kill process %s: %v", existing.ID, err)
		} else {
			metrics.Restarts.Inc()
		}
	}
	return m.Ensure(ctx)
}

// startupError builds the diagnostic for a fresh process that never became
// ready. The immediate wait error is usually an opaque timeout, so the
// richer failed-process logs are preferred; empty streams render as
// "(empty)" to stay distinguishable from retrieval failure.
func (m *Manager) startupError(ctx context.Context, cause error) error {
	logs := m.FailedProcessLogs(ctx)
	if logs != nil && (logs.Stdout != "" || logs.Stderr != "") {
		return fmt.Errorf("moltbot gateway failed to start\n--- stdout ---\n%s\n--- stderr ---\n%s",
			orEmpty(logs.Stdout), orEmpty(logs.Stderr))
	}
	return fmt.Errorf("moltbot gateway failed to start: %v", cause)
}

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}
