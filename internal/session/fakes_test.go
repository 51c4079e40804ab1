package session

import (
	"context"
	"fmt"

	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/plugin"
)

type fakeRuntime struct {
	alive   bool
	created []model.LaunchConfig
}

func (f *fakeRuntime) Create(_ context.Context, cfg model.LaunchConfig) (model.RuntimeHandle, error) {
	f.created = append(f.created, cfg)
	return model.RuntimeHandle{ID: cfg.SessionID, RuntimeName: "fake-runtime"}, nil
}
func (f *fakeRuntime) Destroy(context.Context, model.RuntimeHandle) error { return nil }
func (f *fakeRuntime) SendMessage(_ context.Context, _ model.RuntimeHandle, _ string) error {
	return nil
}
func (f *fakeRuntime) GetOutput(context.Context, model.RuntimeHandle, int) (string, error) {
	return "", nil
}
func (f *fakeRuntime) IsAlive(context.Context, model.RuntimeHandle) (bool, error) {
	return f.alive, nil
}

type fakeAgent struct{}

func (fakeAgent) GetLaunchCommand(cfg model.LaunchConfig) (string, error) {
	return "fake-agent run", nil
}
func (fakeAgent) GetEnvironment(model.LaunchConfig) (map[string]string, error) {
	return map[string]string{}, nil
}
func (fakeAgent) DetectActivity(string) model.Activity { return model.ActivityActive }
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
	destroyed []string
}

func (f *fakeWorkspace) Create(_ context.Context, cfg model.LaunchConfig, _ model.Project) (model.WorkspaceInfo, error) {
	return model.WorkspaceInfo{Path: f.basePath + "/" + cfg.SessionID, Branch: cfg.Branch}, nil
}
func (f *fakeWorkspace) Destroy(_ context.Context, path string) error {
	f.destroyed = append(f.destroyed, path)
	return nil
}
func (f *fakeWorkspace) List(context.Context, string) ([]model.WorkspaceInfo, error) { return nil, nil }
func (f *fakeWorkspace) Exists(context.Context, string) (bool, error)                 { return true, nil }
func (f *fakeWorkspace) Restore(_ context.Context, cfg model.LaunchConfig, _ model.Project) (model.WorkspaceInfo, error) {
	return model.WorkspaceInfo{Path: f.basePath + "/" + cfg.SessionID}, nil
}

type fakeTracker struct {
	issues map[string]model.Issue
}

func (f *fakeTracker) GetIssue(_ context.Context, id string, _ model.Project) (model.Issue, error) {
	if issue, ok := f.issues[id]; ok {
		return issue, nil
	}
	return model.Issue{}, plugin.ErrIssueNotFound
}
func (f *fakeTracker) IsCompleted(issue model.Issue) bool { return len(issue.Labels) > 0 }
func (f *fakeTracker) IssueURL(id string, _ model.Project) string {
	return fmt.Sprintf("https://example.invalid/issues/%s", id)
}
func (f *fakeTracker) BranchName(id string, _ model.Project) (string, error) { return "", nil }
func (f *fakeTracker) GeneratePrompt(issue model.Issue, _ model.Project) (string, error) {
	return "work on: " + issue.Title, nil
}
