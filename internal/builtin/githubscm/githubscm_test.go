package githubscm

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
)

func newTestSCM(t *testing.T, mux *http.ServeMux) (*SCM, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(server.Client())
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	scm := New(Config{})
	scm.gh = gh
	return scm, server
}

func initRepoWithOrigin(t *testing.T, remoteURL string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gogitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	require.NoError(t, err)
	return dir
}

func TestParseOwnerRepoVariants(t *testing.T) {
	cases := []struct {
		url       string
		wantOwner string
		wantRepo  string
	}{
		{"git@github.com:acme/widgets.git", "acme", "widgets"},
		{"https://github.com/acme/widgets.git", "acme", "widgets"},
		{"https://github.com/acme/widgets", "acme", "widgets"},
		{"ssh://git@github.com/acme/widgets.git", "acme", "widgets"},
	}
	for _, c := range cases {
		owner, repo, err := parseOwnerRepo(c.url)
		require.NoError(t, err, c.url)
		require.Equal(t, c.wantOwner, owner, c.url)
		require.Equal(t, c.wantRepo, repo, c.url)
	}
}

func TestRepoSlugFromPathReadsOriginRemote(t *testing.T) {
	dir := initRepoWithOrigin(t, "git@github.com:acme/widgets.git")
	owner, repo, err := repoSlugFromPath(dir)
	require.NoError(t, err)
	require.Equal(t, "acme", owner)
	require.Equal(t, "widgets", repo)
}

func TestDetectPRFindsOpenPRByHeadBranch(t *testing.T) {
	dir := initRepoWithOrigin(t, "git@github.com:acme/widgets.git")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "acme:feature/x", r.URL.Query().Get("head"))
		fmt.Fprint(w, `[{"number":42,"html_url":"https://github.com/acme/widgets/pull/42","head":{"ref":"feature/x"},"base":{"ref":"main"},"draft":false}]`)
	})
	scm, _ := newTestSCM(t, mux)

	sess := &model.Session{ID: "w-1", Branch: "feature/x"}
	project := model.Project{Path: dir}
	pr, err := scm.DetectPR(context.Background(), sess, project)
	require.NoError(t, err)
	require.NotNil(t, pr)
	require.Equal(t, 42, pr.Number)
	require.Equal(t, "acme", pr.Owner)
	require.Equal(t, "widgets", pr.Repo)
}

func TestDetectPRReturnsNilWhenNoneFound(t *testing.T) {
	dir := initRepoWithOrigin(t, "git@github.com:acme/widgets.git")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	scm, _ := newTestSCM(t, mux)

	pr, err := scm.DetectPR(context.Background(), &model.Session{Branch: "feature/x"}, model.Project{Path: dir})
	require.NoError(t, err)
	require.Nil(t, pr)
}

func TestGetPRStateClassifiesMergedClosedOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":7,"state":"closed","merged":true}`)
	})
	scm, _ := newTestSCM(t, mux)

	state, err := scm.GetPRState(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)
	require.Equal(t, model.PRStateMerged, state)
}

func TestGetCISummaryFailingWhenAnyCheckFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":7,"head":{"sha":"deadbeef"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/commits/deadbeef/check-runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":2,"check_runs":[{"name":"build","conclusion":"success"},{"name":"lint","conclusion":"failure"}]}`)
	})
	scm, _ := newTestSCM(t, mux)

	summary, err := scm.GetCISummary(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)
	require.Equal(t, model.CISummaryFailing, summary)
}

func TestGetReviewDecisionChangesRequestedWins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"user":{"login":"alice"},"state":"APPROVED"},{"user":{"login":"bob"},"state":"CHANGES_REQUESTED"}]`)
	})
	scm, _ := newTestSCM(t, mux)

	decision, err := scm.GetReviewDecision(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)
	require.Equal(t, model.ReviewDecisionChangesRequested, decision)
}

func TestGetReviewDecisionApprovedWhenNoOutstandingRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"user":{"login":"alice"},"state":"APPROVED"}]`)
	})
	scm, _ := newTestSCM(t, mux)

	decision, err := scm.GetReviewDecision(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)
	require.Equal(t, model.ReviewDecisionApproved, decision)
}

func TestMergePRCallsMergeEndpoint(t *testing.T) {
	merged := false
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		merged = true
		fmt.Fprint(w, `{"merged":true}`)
	})
	scm, _ := newTestSCM(t, mux)

	err := scm.MergePR(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)
	require.True(t, merged)
}

func TestPostCommentCallsIssuesAPI(t *testing.T) {
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			gotBody = "posted"
			fmt.Fprint(w, `{"id":1}`)
			return
		}
	})
	scm, _ := newTestSCM(t, mux)

	err := scm.PostComment(context.Background(), model.PR{Owner: "acme", Repo: "widgets", Number: 7}, "please fix the lint error")
	require.NoError(t, err)
	require.Equal(t, "posted", gotBody)
}

func TestWithRetryGivesUpImmediatelyOnNonTransientError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	scm, _ := newTestSCM(t, mux)

	attempts := 0
	err := scm.withRetry(context.Background(), func() error {
		attempts++
		_, _, err := scm.gh.PullRequests.Get(context.Background(), "acme", "widgets", 7)
		return err
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts, "a 404 is not transient and must not be retried")
}
