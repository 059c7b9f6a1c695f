package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moltbot/moltproxy/pkg/client"
)

var (
	baseURL string
	token   string
)

var rootCmd = &cobra.Command{
	Use:   "moltctl",
	Short: "moltctl - Manage the moltbot gateway from the command line",
	Long: `moltctl is a command-line tool for operating a moltproxy instance.

It provides commands to inspect the sandbox process table, check and
restart the gateway process, and trigger backups to object storage.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("MOLTPROXY_URL", "http://localhost:8080"), "moltproxy base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("MOLTPROXY_TOKEN"), "admin bearer token")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() (*client.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("admin token is required. Set MOLTPROXY_TOKEN or use --token")
	}
	return client.New(baseURL, token), nil
}
