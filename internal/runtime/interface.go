package runtime

import (
	"context"
	"time"

	"github.com/moltbot/moltproxy/pkg/types"
)

// Runtime is the process-management contract of the sandbox supervisor.
// The gateway lifecycle manager depends on this interface, not on the
// concrete HTTP client, so the supervisor transport can be swapped and
// tests can run against an in-memory fake.
type Runtime interface {
	// ListProcesses returns every process record the supervisor knows
	// about, oldest first (the supervisor's own listing order).
	ListProcesses(ctx context.Context) ([]types.Process, error)

	// StartProcess spawns a new process inside the sandbox and returns a
	// handle for it. The spawn itself failing is distinct from the process
	// later exiting; the latter surfaces through WaitForPort or Logs.
	StartProcess(ctx context.Context, spec types.StartSpec) (ProcessHandle, error)

	// Attach wraps a listed process record in a handle so kill, log
	// retrieval, and port waits can be issued against it.
	Attach(p types.Process) ProcessHandle

	// EnsureMount asks the supervisor to attach the bucket-backed
	// persistent directory into the sandbox filesystem. Idempotent.
	EnsureMount(ctx context.Context) error
}

// ProcessHandle is a live reference to a supervisor-managed process.
type ProcessHandle interface {
	// Info returns the process record as of when the handle was obtained.
	Info() types.Process

	// WaitForPort blocks until a TCP listener on the given sandbox port
	// accepts a connection, or the timeout elapses. The full timeout is
	// always consumed before failure is reported.
	WaitForPort(ctx context.Context, port int, timeout time.Duration) error

	// Kill requests termination. Callers treat failure as best-effort.
	Kill(ctx context.Context) error

	// Logs fetches the captured stdout/stderr for this process.
	Logs(ctx context.Context) (*types.ProcessLogs, error)
}
