// Package cli wires the cobra command surface onto session.Manager and
// lifecycle.Manager: spawn, spawn-batch, spawn-orchestrator, send, kill,
// restore, cleanup, list, get, verdict, serve, logs, and version. It does no orchestration of
// its own; every subcommand's RunE is a thin dispatch onto those two
// packages, following the split the teacher keeps between its TUI
// entrypoint (out of AO's scope) and its scriptable module-runner.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const longDescription = `aod supervises agent coding sessions across one or more
git projects: it spawns a worker session per issue, polls its runtime and
agent for status, runs it through the verifier/reviewer gates, and reacts
to stuck, failing, or completed sessions per the project's ao.yaml policy.`

// NewRootCmd builds the aod command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "aod",
		Short:         "Agent orchestrator daemon and CLI",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "ao.yaml", "path to the orchestrator's config file")

	app := &appContext{configPath: &configPath}

	cmd.AddCommand(
		newSpawnCmd(app),
		newSpawnBatchCmd(app),
		newSpawnOrchestratorCmd(app),
		newSendCmd(app),
		newKillCmd(app),
		newRestoreCmd(app),
		newCleanupCmd(app),
		newListCmd(app),
		newGetCmd(app),
		newVerdictCmd(app),
		newServeCmd(app),
		newLogsCmd(app),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show aod's version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "aod (dev)")
			return err
		},
	}
}
