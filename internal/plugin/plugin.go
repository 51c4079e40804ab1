// Package plugin defines the six external-collaborator contracts the core
// consumes (Runtime, Agent, Workspace, SCM, Tracker, Notifier) and an
// in-memory registry mapping (slot, name) to a concrete instance. Built-in
// implementations live under internal/builtin; additional ones may be
// declared via YAML or dynamically loaded Go source (see declare.go,
// goload.go).
package plugin

import (
	"context"
	"errors"

	"github.com/ao-project/ao/internal/model"
)

// ErrIssueNotFound is returned by Tracker.GetIssue when the tracker has no
// record of the requested issue. The session manager treats this
// differently from any other tracker error: it proceeds in ad-hoc mode
// instead of failing the spawn.
var ErrIssueNotFound = errors.New("plugin: issue not found")

// ErrRestoreUnsupported is returned by Workspace.Restore when a workspace
// plugin cannot re-attach to a detached working copy.
var ErrRestoreUnsupported = errors.New("plugin: workspace restore not supported")

// Slot names one of the six plugin roles the core dispatches through.
type Slot string

const (
	SlotRuntime   Slot = "runtime"
	SlotAgent     Slot = "agent"
	SlotWorkspace Slot = "workspace"
	SlotSCM       Slot = "scm"
	SlotTracker   Slot = "tracker"
	SlotNotifier  Slot = "notifier"
)

// Runtime owns the agent's subprocess: creating it, messaging it, reading
// its output, and reporting whether it is still alive.
type Runtime interface {
	Create(ctx context.Context, cfg model.LaunchConfig) (model.RuntimeHandle, error)
	Destroy(ctx context.Context, handle model.RuntimeHandle) error
	SendMessage(ctx context.Context, handle model.RuntimeHandle, text string) error
	GetOutput(ctx context.Context, handle model.RuntimeHandle, lines int) (string, error)
	IsAlive(ctx context.Context, handle model.RuntimeHandle) (bool, error)
}

// Agent owns the launch/introspection contract for a specific coding-agent
// CLI: how to start it, how to tell whether it is idle or waiting on input,
// and how to resume it.
type Agent interface {
	GetLaunchCommand(cfg model.LaunchConfig) (string, error)
	GetEnvironment(cfg model.LaunchConfig) (map[string]string, error)
	DetectActivity(output string) model.Activity
	IsProcessRunning(ctx context.Context, handle model.RuntimeHandle) (bool, error)

	// GetRestoreCommand returns an alternate launch command used by
	// session restore, or ("", nil) to fall back to GetLaunchCommand.
	GetRestoreCommand(cfg model.LaunchConfig) (string, error)
	// GetActivityState reports the agent's current activity for a listed
	// session, or (nil, nil) when unknown — an explicit "no signal" the
	// caller must not coerce into a guess.
	GetActivityState(ctx context.Context, session *model.Session) (*model.Activity, error)
	// GetSessionInfo returns agent-specific session metadata (token usage,
	// model name, ...) or (nil, nil) when unavailable.
	GetSessionInfo(ctx context.Context, session *model.Session) (map[string]string, error)
	// SetupWorkspaceHooks installs agent-specific hook scripts into a
	// freshly created workspace; a no-op implementation is acceptable.
	SetupWorkspaceHooks(ctx context.Context, workspacePath string, cfg model.LaunchConfig) error
	// PostLaunchSetup runs after the runtime process has started; a no-op
	// implementation is acceptable.
	PostLaunchSetup(ctx context.Context, session *model.Session) error
}

// Workspace owns the session's source tree: creating a working copy on a
// branch, destroying it, and (optionally) restoring one that was detached.
type Workspace interface {
	Create(ctx context.Context, cfg model.LaunchConfig, project model.Project) (model.WorkspaceInfo, error)
	Destroy(ctx context.Context, path string) error
	List(ctx context.Context, projectID string) ([]model.WorkspaceInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Restore re-attaches to an existing workspace directory. Implementations
	// that cannot restore return (WorkspaceInfo{}, ErrRestoreUnsupported).
	Restore(ctx context.Context, cfg model.LaunchConfig, project model.Project) (model.WorkspaceInfo, error)
}

// SCM integrates with a source-control platform: PR state, CI, and reviews.
type SCM interface {
	DetectPR(ctx context.Context, session *model.Session, project model.Project) (*model.PR, error)
	GetPRState(ctx context.Context, pr model.PR) (model.PRState, error)
	GetCISummary(ctx context.Context, pr model.PR) (model.CISummary, error)
	GetCIChecks(ctx context.Context, pr model.PR) ([]model.CICheck, error)
	GetReviewDecision(ctx context.Context, pr model.PR) (model.ReviewDecision, error)
	GetPendingComments(ctx context.Context, pr model.PR) ([]model.Comment, error)
	GetMergeability(ctx context.Context, pr model.PR) (model.Mergeability, error)
	MergePR(ctx context.Context, pr model.PR) error
	ClosePR(ctx context.Context, pr model.PR) error

	// PostComment posts a plain comment to the PR's issue thread, such as a
	// reviewer verdict that the reviewer gate later reads back through
	// ListIssueComments.
	PostComment(ctx context.Context, pr model.PR, body string) error
	// ListIssueComments returns the PR's issue-thread comments, newest last.
	ListIssueComments(ctx context.Context, pr model.PR) ([]model.Comment, error)
}

// Tracker integrates with an issue-tracking system.
type Tracker interface {
	GetIssue(ctx context.Context, id string, project model.Project) (model.Issue, error)
	IsCompleted(issue model.Issue) bool
	IssueURL(id string, project model.Project) string
	// BranchName returns a branch name derived from the issue, or ("", nil)
	// to let the caller fall back to its own naming rule.
	BranchName(id string, project model.Project) (string, error)
	GeneratePrompt(issue model.Issue, project model.Project) (string, error)
}

// Notifier delivers an event to a human through some external channel. All
// implementations are best-effort: callers swallow errors rather than block
// the polling loop.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}
