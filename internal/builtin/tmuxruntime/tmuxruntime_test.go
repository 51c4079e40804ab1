package tmuxruntime

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/model"
)

func TestWindowNameIsPrefixedWithSessionID(t *testing.T) {
	require.Equal(t, "ao-worker-1", windowName("worker-1"))
}

func TestParseHandleRoundTrips(t *testing.T) {
	r := New()
	ctx := context.Background()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not available in this environment")
	}

	handle, err := r.Create(ctx, model.LaunchConfig{SessionID: "sess-1", Command: "sh"})
	require.NoError(t, err)
	require.NotEmpty(t, handle.Data)
	require.Equal(t, "tmux", handle.RuntimeName)

	data, err := parseHandle(handle)
	require.NoError(t, err)
	require.Equal(t, "ao-sess-1", data.Window)
}

func TestParseHandleRejectsEmptyData(t *testing.T) {
	_, err := parseHandle(model.RuntimeHandle{ID: "x"})
	require.Error(t, err)
}

func TestParseHandleRejectsMalformedJSON(t *testing.T) {
	_, err := parseHandle(model.RuntimeHandle{ID: "x", Data: "not json"})
	require.Error(t, err)
}

func TestLifecycleCreateSendGetOutputDestroy(t *testing.T) {
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not available in this environment")
	}
	r := New()
	ctx := context.Background()

	handle, err := r.Create(ctx, model.LaunchConfig{SessionID: "sess-2", Command: "sh"})
	require.NoError(t, err)

	alive, err := r.IsAlive(ctx, handle)
	require.NoError(t, err)
	require.True(t, alive)

	require.NoError(t, r.SendMessage(ctx, handle, "echo hello-from-ao"))

	out, err := r.GetOutput(ctx, handle, 50)
	require.NoError(t, err)
	require.Contains(t, out, "hello-from-ao")

	require.NoError(t, r.Destroy(ctx, handle))

	alive, err = r.IsAlive(ctx, handle)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestIsAliveReportsFalseForUnknownWindow(t *testing.T) {
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not available in this environment")
	}
	r := New()
	ctx := context.Background()
	handle := model.RuntimeHandle{ID: "ghost", RuntimeName: "tmux", Data: `{"window":"ao-ghost-nonexistent"}`}

	alive, err := r.IsAlive(ctx, handle)
	require.NoError(t, err)
	require.False(t, alive)
}
