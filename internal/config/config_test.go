package config

import (
	"os"
	"strings"
	"testing"
)

func clearMoltproxyEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, "MOLTPROXY_") {
			t.Setenv(key, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearMoltproxyEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.RuntimeURL != "http://localhost:9620" {
		t.Errorf("RuntimeURL = %q", cfg.RuntimeURL)
	}
	if cfg.SandboxAddr != "127.0.0.1" {
		t.Errorf("SandboxAddr = %q", cfg.SandboxAddr)
	}
	if cfg.DataDir != "/data/moltbot" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.S3Region != "auto" {
		t.Errorf("S3Region = %q, want auto", cfg.S3Region)
	}
	if cfg.BackupIntervalMin != 30 {
		t.Errorf("BackupIntervalMin = %d, want 30", cfg.BackupIntervalMin)
	}
	if cfg.JWTSecret != "" {
		t.Errorf("JWTSecret = %q, want empty by default", cfg.JWTSecret)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearMoltproxyEnv(t)
	t.Setenv("MOLTPROXY_PORT", "9000")
	t.Setenv("MOLTPROXY_RUNTIME_URL", "http://supervisor:8888")
	t.Setenv("MOLTPROXY_RUNTIME_TOKEN", "secret-token")
	t.Setenv("MOLTPROXY_SANDBOX_ADDR", "10.0.0.5")
	t.Setenv("MOLTPROXY_JWT_SECRET", "jwt-secret")
	t.Setenv("MOLTPROXY_S3_BUCKET", "backups")
	t.Setenv("MOLTPROXY_S3_FORCE_PATH_STYLE", "true")
	t.Setenv("MOLTPROXY_BACKUP_INTERVAL_MIN", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.RuntimeURL != "http://supervisor:8888" {
		t.Errorf("RuntimeURL = %q", cfg.RuntimeURL)
	}
	if cfg.RuntimeToken != "secret-token" {
		t.Errorf("RuntimeToken = %q", cfg.RuntimeToken)
	}
	if cfg.SandboxAddr != "10.0.0.5" {
		t.Errorf("SandboxAddr = %q", cfg.SandboxAddr)
	}
	if cfg.JWTSecret != "jwt-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.S3Bucket != "backups" {
		t.Errorf("S3Bucket = %q", cfg.S3Bucket)
	}
	if !cfg.S3ForcePathStyle {
		t.Error("S3ForcePathStyle should be true")
	}
	if cfg.BackupIntervalMin != 5 {
		t.Errorf("BackupIntervalMin = %d, want 5", cfg.BackupIntervalMin)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	clearMoltproxyEnv(t)
	t.Setenv("MOLTPROXY_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid MOLTPROXY_PORT")
	}
}

func TestGatewayEnvSource(t *testing.T) {
	clearMoltproxyEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("MOLTPROXY_GATEWAY_TOKEN", "gw-token")
	t.Setenv("OPENAI_API_KEY", "")

	src := GatewayEnvSource()
	if src["ANTHROPIC_API_KEY"] != "sk-ant-test" {
		t.Errorf("ANTHROPIC_API_KEY = %q", src["ANTHROPIC_API_KEY"])
	}
	if src["MOLTPROXY_GATEWAY_TOKEN"] != "gw-token" {
		t.Errorf("MOLTPROXY_GATEWAY_TOKEN = %q", src["MOLTPROXY_GATEWAY_TOKEN"])
	}
	if _, ok := src["OPENAI_API_KEY"]; ok {
		t.Error("empty env var should not be collected")
	}
}
