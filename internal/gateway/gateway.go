// Package gateway keeps a single long-running moltbot gateway process
// alive inside the sandbox and reachable on its well-known port. It owns
// find-or-start-or-restart semantics, readiness polling, and failure
// diagnosis; actual process management belongs to the sandbox supervisor.
package gateway

import (
	"strings"
	"time"

	"github.com/moltbot/moltproxy/pkg/types"
)

const (
	// Port is the fixed port the gateway listens on once ready.
	Port = 18789

	// StartupTimeout bounds every readiness wait. Minutes-scale to
	// accommodate container cold starts; never shortened for processes
	// found mid-startup.
	StartupTimeout = 3 * time.Minute

	// StartCommand is the fixed invocation that launches the gateway.
	StartCommand = "bash /opt/moltbot/moltbot-start.sh"

	// RoleLabel tags processes spawned by this manager so classification
	// does not depend on command-string matching for our own spawns.
	RoleLabel   = "moltbot.role"
	RoleGateway = "gateway"
)

// Substrings distinguishing the long-running gateway from short-lived
// administrative invocations of the same binary.
var (
	gatewayMarkers = []string{"moltbot-start.sh", "moltbot gateway"}
	cliOnlyMarkers = []string{"moltbot devices", "--version"}
)

// IsGatewayCommand reports whether a command line denotes the gateway
// process: it must contain the startup script or the gateway subcommand,
// and must not be a CLI-only invocation (device listing, version check).
func IsGatewayCommand(command string) bool {
	matched := false
	for _, m := range gatewayMarkers {
		if strings.Contains(command, m) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, m := range cliOnlyMarkers {
		if strings.Contains(command, m) {
			return false
		}
	}
	return true
}

// isGatewayProcess classifies a process record. Processes we spawned carry
// the role label; the command predicate covers records the supervisor
// reports without labels (pre-existing spawns, older supervisors).
func isGatewayProcess(p types.Process) bool {
	if role, ok := p.Labels[RoleLabel]; ok {
		return role == RoleGateway
	}
	return IsGatewayCommand(p.Command)
}
