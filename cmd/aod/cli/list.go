package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *appContext) *cobra.Command {
	var (
		projectID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally scoped to one project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			sessions, err := app.sessions.List(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			return printSessions(cmd, sessions)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "limit to one project (all projects if omitted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}

func newGetCmd(a *appContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <sessionId>",
		Short: "Show a single session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			sess, err := app.sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}
			return printSession(cmd, sess)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a field list")
	return cmd
}
