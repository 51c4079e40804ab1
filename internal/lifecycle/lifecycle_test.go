package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/plugin"
	"github.com/ao-project/ao/internal/session"
)

type harness struct {
	t        *testing.T
	sessions *session.Manager
	lifecyc  *Manager
	runtime  *fakeRuntime
	scm      *fakeSCM
	notifier *fakeNotifier
}

func newHarness(t *testing.T, project config.Project) *harness {
	t.Helper()
	root := t.TempDir()

	reg := plugin.NewRegistry()
	runtime := newFakeRuntime()
	scm := newFakeSCM()
	notifier := &fakeNotifier{}
	reg.MustRegister(plugin.SlotRuntime, "tmux", runtime)
	reg.MustRegister(plugin.SlotAgent, "claude-code", fakeAgent{})
	reg.MustRegister(plugin.SlotWorkspace, "git-worktree", &fakeWorkspace{basePath: root + "/work"})
	reg.MustRegister(plugin.SlotSCM, "github", scm)
	reg.MustRegister(plugin.SlotTracker, "github-issues", fakeTracker{})
	reg.MustRegister(plugin.SlotNotifier, "log", notifier)

	project.Plugins = config.PluginSelection{
		Runtime:   "tmux",
		Agent:     "claude-code",
		Workspace: "git-worktree",
		SCM:       "github",
		Tracker:   "github-issues",
	}
	if project.Prefix == "" {
		project.Prefix = "demo"
	}
	if project.Path == "" {
		project.Path = root + "/repo"
	}

	cfg := &config.Config{
		Home:     root + "/home",
		Projects: map[string]config.Project{"demo": project},
	}

	lb, err := logbook.New(root + "/logbook.txt")
	require.NoError(t, err)
	obs, err := obslog.New(root + "/obs.log")
	require.NoError(t, err)

	mgr, err := session.NewManager(reg, cfg, root+"/ao.yaml", lb, obs)
	require.NoError(t, err)

	lifecyc := NewManager(mgr, reg, nil, lb, obs, time.Hour)
	return &harness{t: t, sessions: mgr, lifecyc: lifecyc, runtime: runtime, scm: scm, notifier: notifier}
}

func (h *harness) spawnWorker(ctx context.Context) *model.Session {
	h.t.Helper()
	sess, err := h.sessions.Spawn(ctx, session.SpawnRequest{ProjectID: "demo"})
	require.NoError(h.t, err)
	return sess
}

func (h *harness) readMeta(sessionID string) metadata.Fields {
	h.t.Helper()
	fields, err := h.sessions.ReadMetadata(sessionID)
	require.NoError(h.t, err)
	return fields
}

func TestDetermineStatusKilledWhenRuntimeDead(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)

	h.runtime.kill(sess.ID)

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusKilled, got)
}

func TestDetermineStatusNeedsInput(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	h.runtime.setOutput(sess.ID, "waiting")

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusNeedsInput, got)
}

func TestDetermineStatusFallsBackToWorking(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	h.runtime.setOutput(sess.ID, "building things")

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusWorking, got)
}

func TestEvaluatePersistsTransitionAndDispatches(t *testing.T) {
	h := newHarness(t, config.Project{
		NotificationRouting: map[string][]string{"urgent": {"log"}},
	})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	h.runtime.setOutput(sess.ID, "waiting")

	h.lifecyc.evaluate(ctx, sess)

	fields := h.readMeta(sess.ID)
	require.Equal(t, string(model.StatusNeedsInput), fields[metaStatus])

	events := h.notifier.received()
	require.Len(t, events, 1)
	require.Equal(t, "session.needs_input", events[0].Type)
}

func TestSweepEmitsAllCompleteOncePerProject(t *testing.T) {
	h := newHarness(t, config.Project{
		NotificationRouting: map[string][]string{"info": {"log"}},
	})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	h.runtime.kill(sess.ID)

	h.lifecyc.sweep(ctx)
	h.lifecyc.sweep(ctx)

	events := h.notifier.received()
	count := 0
	for _, e := range events {
		if e.Type == "summary.all_complete" {
			count++
		}
	}
	require.Equal(t, 1, count, "the one-shot completion event must not repeat across sweeps")
}
