package issuetracker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5"
	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/plugin"
)

func newTestTracker(t *testing.T, mux *http.ServeMux) *Tracker {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(server.Client())
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &Tracker{gh: gh}
}

func repoWithOrigin(t *testing.T, remoteURL string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gogitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteURL}})
	require.NoError(t, err)
	return dir
}

func TestGetIssueMapsFields(t *testing.T) {
	dir := repoWithOrigin(t, "git@github.com:acme/widgets.git")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":12,"title":"Fix the thing","body":"details here","state":"open","labels":[{"name":"bug"}],"html_url":"https://github.com/acme/widgets/issues/12"}`)
	})
	tr := newTestTracker(t, mux)

	issue, err := tr.GetIssue(context.Background(), "12", model.Project{Path: dir})
	require.NoError(t, err)
	require.Equal(t, "Fix the thing", issue.Title)
	require.Equal(t, []string{"bug"}, issue.Labels)
	require.False(t, issue.Closed)
}

func TestGetIssueReturnsErrIssueNotFoundOn404(t *testing.T) {
	dir := repoWithOrigin(t, "git@github.com:acme/widgets.git")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/99", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	tr := newTestTracker(t, mux)

	_, err := tr.GetIssue(context.Background(), "99", model.Project{Path: dir})
	require.ErrorIs(t, err, plugin.ErrIssueNotFound)
}

func TestIsCompletedReflectsClosedField(t *testing.T) {
	tr := &Tracker{}
	require.True(t, tr.IsCompleted(model.Issue{Closed: true}))
	require.False(t, tr.IsCompleted(model.Issue{Closed: false}))
}

func TestBranchNameSlugifiesTitle(t *testing.T) {
	dir := repoWithOrigin(t, "git@github.com:acme/widgets.git")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":12,"title":"Fix the Thing!! Now","state":"open"}`)
	})
	tr := newTestTracker(t, mux)

	branch, err := tr.BranchName("12", model.Project{Path: dir})
	require.NoError(t, err)
	require.Equal(t, "feat/12-fix-the-thing-now", branch)
}

func TestIssueURLBuildsGithubLink(t *testing.T) {
	dir := repoWithOrigin(t, "git@github.com:acme/widgets.git")
	tr := &Tracker{}
	require.Equal(t, "https://github.com/acme/widgets/issues/12", tr.IssueURL("12", model.Project{Path: dir}))
}

func TestGeneratePromptIncludesTitleLabelsAndBody(t *testing.T) {
	tr := &Tracker{}
	prompt, err := tr.GeneratePrompt(model.Issue{
		Title:  "Fix the thing",
		Body:   "Steps to reproduce...",
		Labels: []string{"bug", "p1"},
		URL:    "https://github.com/acme/widgets/issues/12",
	}, model.Project{})
	require.NoError(t, err)
	require.Contains(t, prompt, "Fix the thing")
	require.Contains(t, prompt, "bug, p1")
	require.Contains(t, prompt, "Steps to reproduce...")
}
