// Package reaction composes the structured, human-readable messages sent to
// an agent when a reaction fires: failing CI checks, unresolved review
// comments, a snippet of recent terminal output, and a recommended fix
// order. Sources that are unavailable are silently omitted rather than
// rendered as an error.
package reaction

import (
	"fmt"
	"strings"

	"github.com/ao-project/ao/internal/model"
)

const (
	maxCIChecks       = 8
	maxComments       = 5
	maxCommentBody    = 280
	maxOutputLines    = 40
)

// Inputs bundles everything the message builder may draw from. Any field
// may be nil/empty; the builder renders only what it has.
type Inputs struct {
	ReactionKey  string
	Message      string
	FailingCI    []model.CICheck
	Comments     []model.Comment
	RecentOutput string
}

// Build composes the reaction message for a given reaction key.
func Build(in Inputs) string {
	var b strings.Builder

	if strings.TrimSpace(in.Message) != "" {
		b.WriteString(strings.TrimSpace(in.Message))
		b.WriteString("\n\n")
	}

	if failing := failingChecks(in.FailingCI); len(failing) > 0 {
		b.WriteString("Failing checks:\n")
		for _, name := range failing {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	if comments := topComments(in.Comments); len(comments) > 0 {
		b.WriteString("Unresolved review comments:\n")
		for _, c := range comments {
			fmt.Fprintf(&b, "- %s: %s\n", c.Author, truncate(c.Body, maxCommentBody))
		}
		b.WriteString("\n")
	}

	if snippet := outputSnippet(in.RecentOutput); snippet != "" {
		b.WriteString("Recent terminal output:\n")
		b.WriteString(snippet)
		b.WriteString("\n\n")
	}

	b.WriteString(fixOrder(in))
	return strings.TrimSpace(b.String())
}

func failingChecks(checks []model.CICheck) []string {
	var names []string
	for _, c := range checks {
		if strings.EqualFold(c.Conclusion, "failure") || strings.EqualFold(c.Conclusion, "failing") {
			names = append(names, c.Name)
		}
		if len(names) >= maxCIChecks {
			names = append(names, "... (truncated)")
			break
		}
	}
	return names
}

func topComments(comments []model.Comment) []model.Comment {
	if len(comments) <= maxComments {
		return comments
	}
	return comments[:maxComments]
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func outputSnippet(output string) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxOutputLines {
		return output
	}
	truncated := lines[len(lines)-maxOutputLines:]
	return "... (truncated)\n" + strings.Join(truncated, "\n")
}

func fixOrder(in Inputs) string {
	var steps []string
	if len(failingChecks(in.FailingCI)) > 0 {
		steps = append(steps, "1. Fix the failing checks above.")
	}
	if len(in.Comments) > 0 {
		steps = append(steps, fmt.Sprintf("%d. Address the review comments above.", len(steps)+1))
	}
	if len(steps) == 0 {
		return ""
	}
	return "Recommended order:\n" + strings.Join(steps, "\n")
}
