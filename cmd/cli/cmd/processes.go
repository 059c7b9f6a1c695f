package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var processesCmd = &cobra.Command{
	Use:     "processes",
	Aliases: []string{"ps"},
	Short:   "List processes in the sandbox supervisor's table",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		procs, err := c.ListProcesses(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tEXIT\tSTARTED\tCOMMAND")
		for _, p := range procs {
			exit := "-"
			if p.ExitCode != nil {
				exit = fmt.Sprintf("%d", *p.ExitCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Status, exit,
				p.StartedAt.Format(time.RFC3339), p.Command)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(processesCmd)
}
