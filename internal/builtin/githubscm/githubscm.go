// Package githubscm implements the SCM plugin slot against the real GitHub
// REST API, in the shape of the mattermost-plugin-cursor ghclient.Client:
// one thin wrapper type around *github.Client, auto-paginating every list
// call, with transient errors (5xx, rate limits) retried through
// cenkalti/backoff before they reach the lifecycle manager as a probe
// failure.
package githubscm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-git/v5"
	"github.com/google/go-github/v68/github"

	"github.com/ao-project/ao/internal/model"
)

// Config configures the GitHub SCM plugin.
type Config struct {
	// Token is a personal access token or installation token. Required for
	// anything beyond unauthenticated read access to public repositories.
	Token string
	// BaseURL overrides the API base, for GitHub Enterprise; empty means
	// api.github.com.
	BaseURL string
	// RetryMaxElapsedTime bounds how long a single call keeps retrying a
	// transient error before giving up; zero uses a 20s default.
	RetryMaxElapsedTime time.Duration
}

// SCM is the github-backed implementation of plugin.SCM.
type SCM struct {
	gh      *github.Client
	retryFn func(ctx context.Context) backoff.BackOff
}

// New constructs a github SCM plugin. A blank token still works for public
// repositories at GitHub's unauthenticated rate limit.
func New(cfg Config) *SCM {
	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		if withBase, err := gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err == nil {
			gh = withBase
		}
	}
	maxElapsed := cfg.RetryMaxElapsedTime
	if maxElapsed <= 0 {
		maxElapsed = 20 * time.Second
	}
	return &SCM{
		gh: gh,
		retryFn: func(ctx context.Context) backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = maxElapsed
			b.RandomizationFactor = 0.3
			return backoff.WithContext(b, ctx)
		},
	}
}

// withRetry runs fn, retrying transient GitHub errors (5xx responses, the
// secondary rate limit, and the primary rate limit) through an exponential
// backoff; the rate limit's reset time is not consulted. Any other error
// returns immediately.
func (s *SCM) withRetry(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, s.retryFn(ctx))
}

func isTransient(err error) bool {
	var rateLimit *github.RateLimitError
	if errors.As(err, &rateLimit) {
		return true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return true
	}
	var resp *github.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		return resp.Response.StatusCode >= 500
	}
	return false
}

// repoSlugFromPath opens the project's local git repository and derives
// owner/repo from its "origin" remote, since the orchestrator configures
// projects by filesystem path, not GitHub coordinates.
func repoSlugFromPath(path string) (owner, repo string, err error) {
	repository, err := git.PlainOpen(path)
	if err != nil {
		return "", "", fmt.Errorf("githubscm: open %s: %w", path, err)
	}
	remote, err := repository.Remote("origin")
	if err != nil {
		return "", "", fmt.Errorf("githubscm: no origin remote in %s: %w", path, err)
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return "", "", fmt.Errorf("githubscm: origin remote has no URL in %s", path)
	}
	return parseOwnerRepo(cfg.URLs[0])
}

var scpLikeRemote = regexp.MustCompile(`^[\w.-]+@[\w.-]+:([^/]+)/(.+?)(\.git)?$`)

// parseOwnerRepo accepts the three common GitHub remote URL shapes:
// git@github.com:owner/repo.git, ssh://git@github.com/owner/repo.git, and
// https://github.com/owner/repo.git.
func parseOwnerRepo(remoteURL string) (owner, repo string, err error) {
	if m := scpLikeRemote.FindStringSubmatch(remoteURL); m != nil {
		return m[1], strings.TrimSuffix(m[2], ".git"), nil
	}
	u, parseErr := url.Parse(remoteURL)
	if parseErr != nil {
		return "", "", fmt.Errorf("githubscm: parse remote url %q: %w", remoteURL, parseErr)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("githubscm: remote url %q does not look like a github repo", remoteURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func toModelPR(owner, repo string, pr *github.PullRequest) *model.PR {
	return &model.PR{
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
		Owner:      owner,
		Repo:       repo,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		Draft:      pr.GetDraft(),
	}
}

// DetectPR looks for an open pull request whose head branch is the
// session's branch.
func (s *SCM) DetectPR(ctx context.Context, sess *model.Session, project model.Project) (*model.PR, error) {
	if sess.Branch == "" {
		return nil, nil
	}
	owner, repo, err := repoSlugFromPath(project.Path)
	if err != nil {
		return nil, err
	}

	var found *github.PullRequest
	err = s.withRetry(ctx, func() error {
		prs, _, listErr := s.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
			Head:        owner + ":" + sess.Branch,
			State:       "open",
			ListOptions: github.ListOptions{PerPage: 1},
		})
		if listErr != nil {
			return listErr
		}
		if len(prs) > 0 {
			found = prs[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}
	return toModelPR(owner, repo, found), nil
}

func (s *SCM) getPR(ctx context.Context, pr model.PR) (*github.PullRequest, error) {
	var out *github.PullRequest
	err := s.withRetry(ctx, func() error {
		got, _, err := s.gh.PullRequests.Get(ctx, pr.Owner, pr.Repo, pr.Number)
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	return out, err
}

// GetPRState classifies a PR as open, merged, or closed.
func (s *SCM) GetPRState(ctx context.Context, pr model.PR) (model.PRState, error) {
	got, err := s.getPR(ctx, pr)
	if err != nil {
		return "", err
	}
	if got.GetMerged() {
		return model.PRStateMerged, nil
	}
	if got.GetState() == "closed" {
		return model.PRStateClosed, nil
	}
	return model.PRStateOpen, nil
}

// GetCISummary aggregates check-run conclusions on the PR's head SHA into a
// single pass/fail/pending verdict.
func (s *SCM) GetCISummary(ctx context.Context, pr model.PR) (model.CISummary, error) {
	checks, err := s.GetCIChecks(ctx, pr)
	if err != nil {
		return "", err
	}
	if len(checks) == 0 {
		return model.CISummaryPending, nil
	}
	pending := false
	for _, c := range checks {
		switch c.Conclusion {
		case "failure", "timed_out", "cancelled", "action_required":
			return model.CISummaryFailing, nil
		case "":
			pending = true
		}
	}
	if pending {
		return model.CISummaryPending, nil
	}
	return model.CISummaryPassing, nil
}

// GetCIChecks lists every check run reported against the PR's head commit.
func (s *SCM) GetCIChecks(ctx context.Context, pr model.PR) ([]model.CICheck, error) {
	got, err := s.getPR(ctx, pr)
	if err != nil {
		return nil, err
	}
	ref := got.GetHead().GetSHA()
	if ref == "" {
		return nil, nil
	}

	var checks []model.CICheck
	opts := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: 100, Page: 1}}
	for {
		var page *github.ListCheckRunsResults
		err := s.withRetry(ctx, func() error {
			result, _, err := s.gh.Checks.ListCheckRunsForRef(ctx, pr.Owner, pr.Repo, ref, opts)
			if err != nil {
				return err
			}
			page = result
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, run := range page.CheckRuns {
			checks = append(checks, model.CICheck{
				Name:       run.GetName(),
				Conclusion: run.GetConclusion(),
				DetailsURL: run.GetDetailsURL(),
			})
		}
		if page.GetTotal() <= len(checks) || len(page.CheckRuns) == 0 {
			break
		}
		opts.Page++
	}
	return checks, nil
}

// GetReviewDecision aggregates every review's latest state per reviewer:
// any outstanding CHANGES_REQUESTED wins, then any APPROVED, else pending.
func (s *SCM) GetReviewDecision(ctx context.Context, pr model.PR) (model.ReviewDecision, error) {
	reviews, err := s.listReviews(ctx, pr)
	if err != nil {
		return "", err
	}
	latestByReviewer := map[string]*github.PullRequestReview{}
	for _, r := range reviews {
		state := r.GetState()
		if state == "COMMENTED" || state == "PENDING" {
			continue
		}
		latestByReviewer[r.GetUser().GetLogin()] = r
	}
	sawApproval := false
	for _, r := range latestByReviewer {
		switch r.GetState() {
		case "CHANGES_REQUESTED":
			return model.ReviewDecisionChangesRequested, nil
		case "APPROVED":
			sawApproval = true
		}
	}
	if sawApproval {
		return model.ReviewDecisionApproved, nil
	}
	return model.ReviewDecisionPending, nil
}

func (s *SCM) listReviews(ctx context.Context, pr model.PR) ([]*github.PullRequestReview, error) {
	var all []*github.PullRequestReview
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.PullRequestReview
		var resp *github.Response
		err := s.withRetry(ctx, func() error {
			got, r, err := s.gh.PullRequests.ListReviews(ctx, pr.Owner, pr.Repo, pr.Number, opts)
			if err != nil {
				return err
			}
			page, resp = got, r
			return nil
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetPendingComments returns every inline review comment on the PR; reaction
// messages list all of them as outstanding feedback since
// the REST API does not expose GraphQL's per-thread resolved state.
func (s *SCM) GetPendingComments(ctx context.Context, pr model.PR) ([]model.Comment, error) {
	var all []model.Comment
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page []*github.PullRequestComment
		var resp *github.Response
		err := s.withRetry(ctx, func() error {
			got, r, err := s.gh.PullRequests.ListComments(ctx, pr.Owner, pr.Repo, pr.Number, opts)
			if err != nil {
				return err
			}
			page, resp = got, r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			all = append(all, model.Comment{
				Author: c.GetUser().GetLogin(),
				Body:   c.GetBody(),
				Path:   c.GetPath(),
				URL:    c.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetMergeability reports GitHub's computed mergeable state for the PR.
func (s *SCM) GetMergeability(ctx context.Context, pr model.PR) (model.Mergeability, error) {
	got, err := s.getPR(ctx, pr)
	if err != nil {
		return model.Mergeability{}, err
	}
	return model.Mergeability{
		Mergeable: got.GetMergeable(),
		Reason:    got.GetMergeableState(),
	}, nil
}

// MergePR merges the PR with GitHub's default (merge commit) strategy.
func (s *SCM) MergePR(ctx context.Context, pr model.PR) error {
	return s.withRetry(ctx, func() error {
		_, _, err := s.gh.PullRequests.Merge(ctx, pr.Owner, pr.Repo, pr.Number, "", nil)
		return err
	})
}

// ClosePR closes the PR without merging.
func (s *SCM) ClosePR(ctx context.Context, pr model.PR) error {
	return s.withRetry(ctx, func() error {
		_, _, err := s.gh.PullRequests.Edit(ctx, pr.Owner, pr.Repo, pr.Number, &github.PullRequest{
			State: github.Ptr("closed"),
		})
		return err
	})
}

// PostComment posts a plain-text comment to the PR's issue thread.
func (s *SCM) PostComment(ctx context.Context, pr model.PR, body string) error {
	return s.withRetry(ctx, func() error {
		_, _, err := s.gh.Issues.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, &github.IssueComment{
			Body: github.Ptr(body),
		})
		return err
	})
}

// ListIssueComments returns the PR's issue-thread comments, oldest first.
func (s *SCM) ListIssueComments(ctx context.Context, pr model.PR) ([]model.Comment, error) {
	var all []model.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page []*github.IssueComment
		var resp *github.Response
		err := s.withRetry(ctx, func() error {
			got, r, err := s.gh.Issues.ListComments(ctx, pr.Owner, pr.Repo, pr.Number, opts)
			if err != nil {
				return err
			}
			page, resp = got, r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			all = append(all, model.Comment{
				Author: c.GetUser().GetLogin(),
				Body:   c.GetBody(),
				URL:    c.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}
