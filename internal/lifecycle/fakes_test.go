package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/ao-project/ao/internal/model"
)

type fakeRuntime struct {
	mu       sync.Mutex
	alive    map[string]bool
	output   map[string]string
	sent     []string
	failSend bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{alive: map[string]bool{}, output: map[string]string{}}
}

func (f *fakeRuntime) Create(_ context.Context, cfg model.LaunchConfig) (model.RuntimeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[cfg.SessionID] = true
	return model.RuntimeHandle{ID: cfg.SessionID, RuntimeName: "fake-runtime"}, nil
}
func (f *fakeRuntime) Destroy(_ context.Context, h model.RuntimeHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, h.ID)
	return nil
}
func (f *fakeRuntime) SendMessage(_ context.Context, h model.RuntimeHandle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return fmt.Errorf("fake runtime: send failed")
	}
	f.sent = append(f.sent, h.ID+":"+text)
	return nil
}
func (f *fakeRuntime) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
func (f *fakeRuntime) GetOutput(_ context.Context, h model.RuntimeHandle, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output[h.ID], nil
}
func (f *fakeRuntime) IsAlive(_ context.Context, h model.RuntimeHandle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alive, ok := f.alive[h.ID]
	return ok && alive, nil
}
func (f *fakeRuntime) setOutput(sessionID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output[sessionID] = text
}
func (f *fakeRuntime) kill(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[sessionID] = false
}

type fakeAgent struct{}

func (fakeAgent) GetLaunchCommand(model.LaunchConfig) (string, error) { return "fake-agent run", nil }
func (fakeAgent) GetEnvironment(model.LaunchConfig) (map[string]string, error) {
	return map[string]string{}, nil
}
func (fakeAgent) DetectActivity(output string) model.Activity {
	if output == "waiting" {
		return model.ActivityWaitingInput
	}
	return model.ActivityActive
}
func (fakeAgent) IsProcessRunning(context.Context, model.RuntimeHandle) (bool, error) {
	return true, nil
}
func (fakeAgent) GetRestoreCommand(model.LaunchConfig) (string, error) { return "", nil }
func (fakeAgent) GetActivityState(context.Context, *model.Session) (*model.Activity, error) {
	return nil, nil
}
func (fakeAgent) GetSessionInfo(context.Context, *model.Session) (map[string]string, error) {
	return nil, nil
}
func (fakeAgent) SetupWorkspaceHooks(context.Context, string, model.LaunchConfig) error { return nil }
func (fakeAgent) PostLaunchSetup(context.Context, *model.Session) error                 { return nil }

type fakeWorkspace struct {
	basePath string
}

func (f *fakeWorkspace) Create(_ context.Context, cfg model.LaunchConfig, _ model.Project) (model.WorkspaceInfo, error) {
	return model.WorkspaceInfo{Path: f.basePath + "/" + cfg.SessionID, Branch: cfg.Branch}, nil
}
func (f *fakeWorkspace) Destroy(context.Context, string) error { return nil }
func (f *fakeWorkspace) List(context.Context, string) ([]model.WorkspaceInfo, error) {
	return nil, nil
}
func (f *fakeWorkspace) Exists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeWorkspace) Restore(_ context.Context, cfg model.LaunchConfig, _ model.Project) (model.WorkspaceInfo, error) {
	return model.WorkspaceInfo{Path: f.basePath + "/" + cfg.SessionID}, nil
}

// fakeSCM lets each test script a PR's state, CI, review decision, and
// comment thread by session id, and records which PRs were merged.
type fakeSCM struct {
	mu sync.Mutex

	prBySession map[string]*model.PR
	state       map[int]model.PRState
	ci          map[int]model.CISummary
	checks      map[int][]model.CICheck
	decision    map[int]model.ReviewDecision
	mergeable   map[int]model.Mergeability
	comments    map[int][]model.Comment
	merged      []int
}

func newFakeSCM() *fakeSCM {
	return &fakeSCM{
		prBySession: map[string]*model.PR{},
		state:       map[int]model.PRState{},
		ci:          map[int]model.CISummary{},
		checks:      map[int][]model.CICheck{},
		decision:    map[int]model.ReviewDecision{},
		mergeable:   map[int]model.Mergeability{},
		comments:    map[int][]model.Comment{},
	}
}

func (f *fakeSCM) DetectPR(_ context.Context, sess *model.Session, _ model.Project) (*model.PR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prBySession[sess.ID], nil
}
func (f *fakeSCM) GetPRState(_ context.Context, pr model.PR) (model.PRState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.state[pr.Number]; ok {
		return st, nil
	}
	return model.PRStateOpen, nil
}
func (f *fakeSCM) GetCISummary(_ context.Context, pr model.PR) (model.CISummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.ci[pr.Number]; ok {
		return s, nil
	}
	return model.CISummaryPassing, nil
}
func (f *fakeSCM) GetCIChecks(_ context.Context, pr model.PR) ([]model.CICheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks[pr.Number], nil
}
func (f *fakeSCM) GetReviewDecision(_ context.Context, pr model.PR) (model.ReviewDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.decision[pr.Number]; ok {
		return d, nil
	}
	return model.ReviewDecisionPending, nil
}
func (f *fakeSCM) GetPendingComments(_ context.Context, pr model.PR) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[pr.Number], nil
}
func (f *fakeSCM) GetMergeability(_ context.Context, pr model.PR) (model.Mergeability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mergeable[pr.Number]; ok {
		return m, nil
	}
	return model.Mergeability{Mergeable: true}, nil
}
func (f *fakeSCM) MergePR(_ context.Context, pr model.PR) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, pr.Number)
	return nil
}
func (f *fakeSCM) ClosePR(context.Context, model.PR) error { return nil }
func (f *fakeSCM) PostComment(_ context.Context, pr model.PR, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[pr.Number] = append(f.comments[pr.Number], model.Comment{Author: "bot", Body: body})
	return nil
}
func (f *fakeSCM) ListIssueComments(_ context.Context, pr model.PR) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[pr.Number], nil
}
func (f *fakeSCM) setPR(sessionID string, pr *model.PR) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prBySession[sessionID] = pr
}

// fakeNotifier records every event delivered to it.
type fakeNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (f *fakeNotifier) Notify(_ context.Context, event model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
func (f *fakeNotifier) received() []model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Event, len(f.events))
	copy(out, f.events)
	return out
}

type fakeTracker struct{}

func (fakeTracker) GetIssue(context.Context, string, model.Project) (model.Issue, error) {
	return model.Issue{}, fmt.Errorf("not used")
}
func (fakeTracker) IsCompleted(model.Issue) bool                      { return false }
func (fakeTracker) IssueURL(string, model.Project) string             { return "" }
func (fakeTracker) BranchName(string, model.Project) (string, error)  { return "", nil }
func (fakeTracker) GeneratePrompt(model.Issue, model.Project) (string, error) {
	return "", nil
}
