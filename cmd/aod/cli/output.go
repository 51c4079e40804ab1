package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ao-project/ao/internal/model"
)

func printSession(cmd *cobra.Command, sess *model.Session) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", sess.ID)
	fmt.Fprintf(w, "project:\t%s\n", sess.ProjectID)
	fmt.Fprintf(w, "status:\t%s\n", sess.Status)
	fmt.Fprintf(w, "activity:\t%s\n", sess.Activity)
	fmt.Fprintf(w, "branch:\t%s\n", sess.Branch)
	if sess.IssueID != "" {
		fmt.Fprintf(w, "issue:\t%s\n", sess.IssueID)
	}
	if sess.PR != nil {
		fmt.Fprintf(w, "pr:\t#%d %s\n", sess.PR.Number, sess.PR.URL)
	}
	fmt.Fprintf(w, "workspace:\t%s\n", sess.WorkspacePath)
	return w.Flush()
}

func printSessions(cmd *cobra.Command, sessions []*model.Session) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tACTIVITY\tBRANCH\tISSUE")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			sess.ID, sess.ProjectID, sess.Status, sess.Activity, sess.Branch, sess.IssueID)
	}
	return w.Flush()
}
