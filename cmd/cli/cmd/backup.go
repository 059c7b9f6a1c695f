package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Trigger an immediate backup of the persistent data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := c.RunBackup(ctx); err != nil {
			return err
		}
		fmt.Println("backup completed")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [key]",
	Short: "Restore a backup archive into the persistent data directory",
	Long: `Restore downloads a backup archive from object storage and unpacks it
over the data directory. With no key, the most recent archive is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		if err := c.RestoreBackup(ctx, key); err != nil {
			return err
		}
		fmt.Println("restore completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
