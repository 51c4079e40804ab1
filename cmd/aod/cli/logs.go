package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogsCmd(a *appContext) *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail the project activity logbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			for _, line := range app.logbook.Tail(lines) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to show")
	return cmd
}
