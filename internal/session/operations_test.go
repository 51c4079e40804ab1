package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/plugin"
)

func newTestManager(t *testing.T) (*Manager, *fakeRuntime, *fakeWorkspace) {
	t.Helper()
	root := t.TempDir()

	reg := plugin.NewRegistry()
	runtime := &fakeRuntime{alive: true}
	workspace := &fakeWorkspace{basePath: root + "/work"}
	tracker := &fakeTracker{issues: map[string]model.Issue{
		"42": {ID: "42", Title: "Fix the thing"},
	}}
	reg.MustRegister(plugin.SlotRuntime, "tmux", runtime)
	reg.MustRegister(plugin.SlotAgent, "claude-code", fakeAgent{})
	reg.MustRegister(plugin.SlotWorkspace, "git-worktree", workspace)
	reg.MustRegister(plugin.SlotTracker, "github-issues", tracker)

	cfg := &config.Config{
		Home: root + "/home",
		Projects: map[string]config.Project{
			"demo": {
				Prefix: "demo",
				Path:   root + "/repo",
				Plugins: config.PluginSelection{
					Runtime:   "tmux",
					Agent:     "claude-code",
					Workspace: "git-worktree",
					Tracker:   "github-issues",
				},
			},
		},
	}

	lb, err := logbook.New(root + "/logbook.txt")
	require.NoError(t, err)
	obs, err := obslog.New(root + "/obs.log")
	require.NoError(t, err)

	mgr, err := NewManager(reg, cfg, root+"/ao.yaml", lb, obs)
	require.NoError(t, err)
	return mgr, runtime, workspace
}

func TestSpawnUnknownProject(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, err := mgr.Spawn(context.Background(), SpawnRequest{ProjectID: "missing"})
	require.Error(t, err)
	requireKind(t, err, KindUnknownProject)
}

func TestSpawnCreatesSessionWithIssue(t *testing.T) {
	mgr, runtime, _ := newTestManager(t)
	sess, err := mgr.Spawn(context.Background(), SpawnRequest{ProjectID: "demo", IssueID: "42"})
	require.NoError(t, err)
	require.Equal(t, "demo-1", sess.ID)
	require.Equal(t, model.StatusSpawning, sess.Status)
	require.Equal(t, "feat/42", sess.Branch)
	require.Len(t, runtime.created, 1)
	require.NotEmpty(t, runtime.created[0].Command, "expected a resolved launch command on the runtime call")
}

func TestSpawnAdHocIssue(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	sess, err := mgr.Spawn(context.Background(), SpawnRequest{ProjectID: "demo", IssueID: "unknown-id"})
	require.NoError(t, err, "spawn should proceed in ad-hoc mode when the tracker has no record of the issue")
	require.Equal(t, "unknown-id", sess.IssueID, "issueId must round-trip verbatim in ad-hoc mode")
}

func TestSpawnAllocatesNextID(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()
	first, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)
	second, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestKillArchivesSession(t *testing.T) {
	mgr, _, workspace := newTestManager(t)
	ctx := context.Background()
	sess, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)

	require.NoError(t, mgr.Kill(ctx, sess.ID))
	require.Len(t, workspace.destroyed, 1)

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, got, "an archived session must be absent from active lookup")
}

func TestKillSessionNotFound(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	err := mgr.Kill(context.Background(), "demo-999")
	requireKind(t, err, KindSessionNotFound)
}

func TestSendUsesStoredHandle(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()
	sess, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)
	require.NoError(t, mgr.Send(ctx, sess.ID, "hello"))
}

func TestRestoreRejectsNonRestorableStatus(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()
	sess, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)

	// spawning is not a restorable status.
	_, err = mgr.Restore(ctx, sess.ID)
	requireKind(t, err, KindSessionNotRestorable)
}

func TestListReportsKilledWhenRuntimeDead(t *testing.T) {
	mgr, runtime, _ := newTestManager(t)
	ctx := context.Background()
	sess, err := mgr.Spawn(ctx, SpawnRequest{ProjectID: "demo"})
	require.NoError(t, err)
	runtime.alive = false

	sessions, err := mgr.List(ctx, "demo")
	require.NoError(t, err)

	var found *model.Session
	for _, s := range sessions {
		if s.ID == sess.ID {
			found = s
		}
	}
	require.NotNil(t, found, "expected to find session %s in list", sess.ID)
	require.Equal(t, model.StatusKilled, found.Status)
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	sessErr, ok := err.(*Error)
	require.True(t, ok, "expected a *session.Error, got %T: %v", err, err)
	require.Equal(t, kind, sessErr.Kind)
}
