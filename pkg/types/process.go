// Package types holds the wire types shared by the moltproxy server, the
// sandbox supervisor client, and the admin API client.
package types

import "time"

// ProcessStatus is the supervisor-reported state of a process.
type ProcessStatus string

const (
	ProcessStarting  ProcessStatus = "starting"
	ProcessRunning   ProcessStatus = "running"
	ProcessCompleted ProcessStatus = "completed"
	ProcessFailed    ProcessStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ProcessStatus) Terminal() bool {
	return s == ProcessCompleted || s == ProcessFailed
}

// Process is a sandbox supervisor process record. Records are created by
// the start call and garbage-collected by the supervisor itself; moltproxy
// only ever requests kills.
type Process struct {
	ID        string            `json:"id"`
	Command   string            `json:"command"`
	Status    ProcessStatus     `json:"status"`
	ExitCode  *int              `json:"exitCode,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
}

// ProcessLogs holds the captured output streams of a process.
type ProcessLogs struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// StartSpec describes a process to spawn.
type StartSpec struct {
	Command string            `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// GatewayStatus is the admin API's view of the singleton gateway process.
type GatewayStatus struct {
	Running bool     `json:"running"`
	Process *Process `json:"process,omitempty"`
	Port    int      `json:"port"`
}
