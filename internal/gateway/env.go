package gateway

import "strconv"

// The gateway binary expects its own environment variable names; the
// surrounding platform supplies MOLTPROXY_*-prefixed ones. The mapping is
// a fixed table: values pass through unchanged, except boolean-like flags
// which gate alternate modes and are rendered as "true" or omitted.

var envRenames = map[string]string{
	"ANTHROPIC_API_KEY":       "ANTHROPIC_API_KEY",
	"OPENAI_API_KEY":          "OPENAI_API_KEY",
	"MOLTPROXY_GATEWAY_TOKEN": "MOLTBOT_GATEWAY_TOKEN",
	"MOLTPROXY_AGENT_MODEL":   "MOLTBOT_PRIMARY_MODEL",
	"MOLTPROXY_BRAVE_API_KEY": "BRAVE_API_KEY",
}

var envFlags = map[string]string{
	"MOLTPROXY_DEV_MODE":     "MOLTBOT_DEV_MODE",
	"MOLTPROXY_ALLOW_UNAUTH": "MOLTBOT_ALLOW_INSECURE_AUTH",
}

// BuildContainerEnv maps the supplied platform environment into the
// environment the gateway process is spawned with. stateDir is the mounted
// persistent directory; it doubles as HOME so the gateway's caches land on
// durable storage.
func BuildContainerEnv(supplied map[string]string, stateDir string) map[string]string {
	env := map[string]string{
		"MOLTBOT_GATEWAY_PORT": strconv.Itoa(Port),
		"MOLTBOT_STATE_DIR":    stateDir,
		"HOME":                 stateDir,
	}

	for from, to := range envRenames {
		if v, ok := supplied[from]; ok && v != "" {
			env[to] = v
		}
	}
	for from, to := range envFlags {
		if truthy(supplied[from]) {
			env[to] = "true"
		}
	}
	return env
}

func truthy(v string) bool {
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
