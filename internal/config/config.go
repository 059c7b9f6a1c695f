package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Config holds all configuration for the moltproxy server.
type Config struct {
	Port     int
	LogLevel string

	// Sandbox supervisor (process-management API)
	RuntimeURL   string // supervisor base URL
	RuntimeToken string // bearer token for the supervisor API
	SandboxAddr  string // host for gateway port probes and proxy targets

	// Auth
	JWTSecret string // shared secret for inbound bearer tokens; empty disables auth (dev only)

	// Persistent storage
	DataDir string // bucket-backed directory mounted into the sandbox

	// S3-compatible object storage for periodic backups
	S3Endpoint        string // e.g. "https://<account>.r2.cloudflarestorage.com"
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool // true for R2/MinIO

	// Backup cadence
	BackupIntervalMin int // minutes between backup runs, 0 disables the loop

	// AWS Secrets Manager — if set, secrets are fetched at startup using IAM
	// credentials. The secret is a JSON object keyed by env var names; env
	// vars take precedence over secret values.
	SecretsARN string
}

// GatewayEnvSource collects the externally-supplied variables the gateway
// environment mapping consumes, straight from the process environment.
func GatewayEnvSource() map[string]string {
	keys := []string{
		"ANTHROPIC_API_KEY",
		"OPENAI_API_KEY",
		"MOLTPROXY_GATEWAY_TOKEN",
		"MOLTPROXY_AGENT_MODEL",
		"MOLTPROXY_BRAVE_API_KEY",
		"MOLTPROXY_DEV_MODE",
		"MOLTPROXY_ALLOW_UNAUTH",
	}
	src := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			src[k] = v
		}
	}
	return src
}

// Load reads configuration from environment variables with sensible defaults.
// If MOLTPROXY_SECRETS_ARN is set, secrets are fetched from AWS Secrets
// Manager first, then environment variables are applied on top.
func Load() (*Config, error) {
	if arn := os.Getenv("MOLTPROXY_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: envOrDefault("MOLTPROXY_LOG_LEVEL", "info"),

		RuntimeURL:   envOrDefault("MOLTPROXY_RUNTIME_URL", "http://localhost:9620"),
		RuntimeToken: os.Getenv("MOLTPROXY_RUNTIME_TOKEN"),
		SandboxAddr:  envOrDefault("MOLTPROXY_SANDBOX_ADDR", "127.0.0.1"),

		JWTSecret: os.Getenv("MOLTPROXY_JWT_SECRET"),

		DataDir: envOrDefault("MOLTPROXY_DATA_DIR", "/data/moltbot"),

		S3Endpoint:        os.Getenv("MOLTPROXY_S3_ENDPOINT"),
		S3Bucket:          os.Getenv("MOLTPROXY_S3_BUCKET"),
		S3Region:          envOrDefault("MOLTPROXY_S3_REGION", "auto"),
		S3AccessKeyID:     os.Getenv("MOLTPROXY_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("MOLTPROXY_S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  os.Getenv("MOLTPROXY_S3_FORCE_PATH_STYLE") == "true",

		BackupIntervalMin: envOrDefaultInt("MOLTPROXY_BACKUP_INTERVAL_MIN", 30),

		SecretsARN: os.Getenv("MOLTPROXY_SECRETS_ARN"),
	}

	if portStr := os.Getenv("MOLTPROXY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid MOLTPROXY_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Uses the default AWS credential chain.
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Extract region from ARN: arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if parts := strings.Split(arn, ":"); len(parts) >= 4 && parts[3] != "" {
		opts = append(opts, awsconfig.WithRegion(parts[3]))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}

	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}

	applied := 0
	for key, value := range secrets {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			applied++
		}
	}

	log.Printf("config: loaded %d secrets from Secrets Manager (%d keys in secret, env overrides take precedence)", applied, len(secrets))
	return nil
}
