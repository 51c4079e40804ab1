package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(a *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lifecycle polling loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aod serving %d project(s), poll interval %s\n",
				len(app.sessions.Projects()), app.cfg.Poll.Interval)
			app.lifecycle.Run(cmd.Context())
			return nil
		},
	}
	return cmd
}
