package gateway

import (
	"testing"

	"github.com/moltbot/moltproxy/pkg/types"
)

func TestIsGatewayCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"startup script", "bash /opt/moltbot/moltbot-start.sh", true},
		{"gateway subcommand", "moltbot gateway --port 18789", true},
		{"unrelated process", "node /srv/app/index.js", false},
		{"device listing", "moltbot devices list", false},
		{"version check", "moltbot gateway --version", false},
		{"script wrapped version check", "bash /opt/moltbot/moltbot-start.sh --version", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGatewayCommand(tt.command); got != tt.want {
				t.Errorf("IsGatewayCommand(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestIsGatewayProcessLabelPrecedence(t *testing.T) {
	// A role label decides classification even when the command would not
	// match the predicate, and vice versa.
	labeled := types.Process{
		Command: "some-wrapper --opaque",
		Labels:  map[string]string{RoleLabel: RoleGateway},
	}
	if !isGatewayProcess(labeled) {
		t.Error("expected labeled process to classify as gateway")
	}

	mislabeled := types.Process{
		Command: "bash /opt/moltbot/moltbot-start.sh",
		Labels:  map[string]string{RoleLabel: "sidecar"},
	}
	if isGatewayProcess(mislabeled) {
		t.Error("expected non-gateway role label to override command match")
	}

	unlabeled := types.Process{Command: "moltbot gateway"}
	if !isGatewayProcess(unlabeled) {
		t.Error("expected unlabeled process to fall back to command predicate")
	}
}
