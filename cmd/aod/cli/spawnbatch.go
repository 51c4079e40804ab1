package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ao-project/ao/internal/scheduler"
	"github.com/ao-project/ao/internal/session"
)

// batchCandidate is one line of a spawn-batch request: the same fields as
// SpawnRequest, plus the scheduler's admission-ordering knobs.
type batchCandidate struct {
	ProjectID string `json:"project"`
	IssueID   string `json:"issue,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Runtime   string `json:"runtime,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Slots     int    `json:"slots,omitempty"`
	Exclusive bool   `json:"exclusive,omitempty"`
}

// newSpawnBatchCmd admits a JSON array of candidate spawns through
// internal/scheduler before calling session.Manager.Spawn for whatever the
// scheduler admits, honoring each project's Policies.Spawn.MaxParallel
// against its currently non-terminal sessions.
func newSpawnBatchCmd(a *appContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "spawn-batch",
		Short: "Admit and spawn a batch of candidate sessions under each project's concurrency cap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := a.build()
			if err != nil {
				return err
			}

			candidates, err := readBatchCandidates(cmd, file)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return nil
			}

			byProject := make(map[string][]batchCandidate)
			for _, c := range candidates {
				byProject[c.ProjectID] = append(byProject[c.ProjectID], c)
			}

			maxParallel := make(map[string]int)
			for _, p := range app.sessions.Projects() {
				maxParallel[p.ID] = p.Config.Policies.Spawn.MaxParallel
			}

			for projectID, group := range byProject {
				if err := admitAndSpawnProjectBatch(cmd, app, projectID, group, maxParallel[projectID]); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a JSON array of candidates (default: stdin)")
	return cmd
}

func readBatchCandidates(cmd *cobra.Command, file string) ([]batchCandidate, error) {
	var r io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var candidates []batchCandidate
	if err := json.NewDecoder(r).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("decoding batch candidates: %w", err)
	}
	return candidates, nil
}

func admitAndSpawnProjectBatch(cmd *cobra.Command, app *app, projectID string, group []batchCandidate, maxParallel int) error {
	existing, err := app.sessions.List(cmd.Context(), projectID)
	if err != nil {
		return err
	}

	running := make([]scheduler.Running, 0, len(existing))
	for _, sess := range existing {
		if sess.Status.Terminal() {
			continue
		}
		running = append(running, scheduler.Running{ID: sess.ID, Slots: 1})
	}

	req := scheduler.Request{MaxParallel: maxParallel, Running: running}
	byID := make(map[string]batchCandidate, len(group))
	for i, c := range group {
		id := fmt.Sprintf("%s#%d", projectID, i)
		byID[id] = c
		req.Candidates = append(req.Candidates, scheduler.Candidate{
			ID: id, Priority: c.Priority, Slots: c.Slots, Exclusive: c.Exclusive,
		})
	}

	batch := scheduler.Admit(req)
	for _, id := range batch.Admitted {
		c := byID[id]
		sess, err := app.sessions.Spawn(cmd.Context(), session.SpawnRequest{
			ProjectID: c.ProjectID,
			IssueID:   c.IssueID,
			Branch:    c.Branch,
			Prompt:    c.Prompt,
			Agent:     c.Agent,
			Runtime:   c.Runtime,
		})
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "spawn failed for %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admitted %s -> %s\n", id, sess.ID)
	}
	for id, reason := range batch.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: %s (%s)\n", id, reason.Reason, reason.Detail)
	}
	return nil
}
