package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ao-project/ao/internal/session"
)

func newSpawnCmd(a *appContext) *cobra.Command {
	var (
		projectID string
		issueID   string
		branch    string
		prompt    string
		agentName string
		runtime   string
		planTask  string
		validated bool
	)

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a new worker session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}

			req := session.SpawnRequest{
				ProjectID: projectID,
				IssueID:   issueID,
				Branch:    branch,
				Prompt:    prompt,
				Agent:     agentName,
				Runtime:   runtime,
			}
			if planTask != "" {
				req.PlanTask = &session.PlanTask{ID: planTask, Validated: validated}
			}

			sess, err := app.sessions.Spawn(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printSession(cmd, sess)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&issueID, "issue", "", "tracker issue id, if any")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name override")
	cmd.Flags().StringVar(&prompt, "prompt", "", "ad-hoc prompt override (replaced by the tracker's generated prompt when the tracker finds the issue)")
	cmd.Flags().StringVar(&agentName, "agent", "", "agent plugin override")
	cmd.Flags().StringVar(&runtime, "runtime", "", "runtime plugin override")
	cmd.Flags().StringVar(&planTask, "plan-task", "", "plan task id, required when the project's spawn policy demands one")
	cmd.Flags().BoolVar(&validated, "plan-task-validated", false, "mark the plan task as validated")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func newSpawnOrchestratorCmd(a *appContext) *cobra.Command {
	var (
		projectID    string
		systemPrompt string
	)

	cmd := &cobra.Command{
		Use:   "spawn-orchestrator",
		Short: "Spawn the fixed orchestrator session for a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}

			sess, err := app.sessions.SpawnOrchestrator(cmd.Context(), session.SpawnOrchestratorRequest{
				ProjectID:    projectID,
				SystemPrompt: systemPrompt,
			})
			if err != nil {
				return err
			}
			return printSession(cmd, sess)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "orchestrator system prompt (written to orchestrator-prompt.md)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func newSendCmd(a *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <sessionId> <message>",
		Short: "Send a message to a session's agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			return app.sessions.Send(cmd.Context(), args[0], args[1])
		},
	}
	return cmd
}

func newKillCmd(a *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill <sessionId>",
		Short: "Kill a session and archive its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			if err := app.sessions.Kill(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "killed %s\n", args[0])
			return err
		},
	}
	return cmd
}

func newRestoreCmd(a *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <sessionId>",
		Short: "Restore a killed, errored, or terminated session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			sess, err := app.sessions.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, sess)
		},
	}
	return cmd
}

func newCleanupCmd(a *appContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Kill every session whose PR is merged, issue is closed, or runtime is dead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}
			result, err := app.sessions.Cleanup(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "killed: %v\nskipped: %v\n", result.Killed, result.Skipped)
			return err
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "limit cleanup to one project (all projects if omitted)")
	return cmd
}
