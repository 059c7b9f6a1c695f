package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gateway process status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := c.GatewayStatus(ctx)
		if err != nil {
			return err
		}
		if !st.Running {
			fmt.Printf("gateway: not running (port %d)\n", st.Port)
			return nil
		}
		fmt.Printf("gateway: %s (status=%s, port=%d, started=%s)\n",
			st.Process.ID, st.Process.Status, st.Port,
			st.Process.StartedAt.Format(time.RFC3339))
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Kill the gateway process and start a fresh one",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		// Restart waits out a full cold start on the server side.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		fmt.Println("restarting gateway...")
		st, err := c.RestartGateway(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("gateway ready: %s (port %d)\n", st.Process.ID, st.Port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restartCmd)
}
