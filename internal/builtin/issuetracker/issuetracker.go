// Package issuetracker implements the Tracker plugin slot as a thin
// wrapper over GitHub's Issues API: fetch an issue, decide whether it is
// closed, derive a branch name, and render the prompt an agent session is
// launched with.
package issuetracker

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/google/go-github/v68/github"

	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/plugin"
)

// Config configures the GitHub issue tracker plugin.
type Config struct {
	Token   string
	BaseURL string
}

// Tracker is the github-backed implementation of plugin.Tracker.
type Tracker struct {
	gh *github.Client
}

// New constructs a github issue tracker plugin.
func New(cfg Config) *Tracker {
	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		if withBase, err := gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err == nil {
			gh = withBase
		}
	}
	return &Tracker{gh: gh}
}

func repoSlugFromPath(path string) (owner, repo string, err error) {
	repository, err := git.PlainOpen(path)
	if err != nil {
		return "", "", fmt.Errorf("issuetracker: open %s: %w", path, err)
	}
	remote, err := repository.Remote("origin")
	if err != nil {
		return "", "", fmt.Errorf("issuetracker: no origin remote in %s: %w", path, err)
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return "", "", fmt.Errorf("issuetracker: origin remote has no URL in %s", path)
	}
	return parseOwnerRepo(cfg.URLs[0])
}

var scpLikeRemote = regexp.MustCompile(`^[\w.-]+@[\w.-]+:([^/]+)/(.+?)(\.git)?$`)

func parseOwnerRepo(remoteURL string) (owner, repo string, err error) {
	if m := scpLikeRemote.FindStringSubmatch(remoteURL); m != nil {
		return m[1], strings.TrimSuffix(m[2], ".git"), nil
	}
	u, parseErr := url.Parse(remoteURL)
	if parseErr != nil {
		return "", "", fmt.Errorf("issuetracker: parse remote url %q: %w", remoteURL, parseErr)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("issuetracker: remote url %q does not look like a github repo", remoteURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// GetIssue fetches a single GitHub issue by its numeric id.
func (t *Tracker) GetIssue(ctx context.Context, id string, project model.Project) (model.Issue, error) {
	number, err := strconv.Atoi(id)
	if err != nil {
		return model.Issue{}, fmt.Errorf("issuetracker: issue id %q is not numeric: %w", id, err)
	}
	owner, repo, err := repoSlugFromPath(project.Path)
	if err != nil {
		return model.Issue{}, err
	}

	issue, resp, err := t.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return model.Issue{}, plugin.ErrIssueNotFound
		}
		return model.Issue{}, err
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return model.Issue{
		ID:     id,
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		URL:    issue.GetHTMLURL(),
		Closed: issue.GetState() == "closed",
	}, nil
}

// IsCompleted reports whether the issue is closed.
func (t *Tracker) IsCompleted(issue model.Issue) bool {
	return issue.Closed
}

// IssueURL renders the GitHub web URL for an issue without fetching it.
func (t *Tracker) IssueURL(id string, project model.Project) string {
	owner, repo, err := repoSlugFromPath(project.Path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s/issues/%s", owner, repo, id)
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	s := slugNonAlnum.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.Trim(s[:50], "-")
	}
	if s == "" {
		s = "issue"
	}
	return s
}

// BranchName derives "feat/<issueNumber>-<slug>" from the issue's number
// and title; it re-fetches the issue since only its id is given.
func (t *Tracker) BranchName(id string, project model.Project) (string, error) {
	issue, err := t.GetIssue(context.Background(), id, project)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("feat/%s-%s", id, slugify(issue.Title)), nil
}

// GeneratePrompt renders the issue's title, labels, and body into the
// prompt text a worker session is launched with.
func (t *Tracker) GeneratePrompt(issue model.Issue, project model.Project) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", issue.Title)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n\n", strings.Join(issue.Labels, ", "))
	}
	if issue.URL != "" {
		fmt.Fprintf(&b, "Issue: %s\n\n", issue.URL)
	}
	b.WriteString(issue.Body)
	return b.String(), nil
}
