package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/model"
)

func TestNewRootCmdRegistersEveryOperation(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"spawn", "spawn-batch", "spawn-orchestrator", "send", "kill", "restore",
		"cleanup", "list", "get", "verdict", "serve", "logs", "version",
	} {
		require.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestVerdictCmdRejectsUnknownVerdict(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"verdict", "proj-1", "maybe"})

	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "passed")
}

func TestSpawnCmdRequiresProjectFlag(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"spawn"})

	err := root.Execute()
	require.Error(t, err)
}

func TestPrintSessionRendersKeyFields(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printSession(cmd, &model.Session{
		ID:        "proj-1",
		ProjectID: "proj",
		Status:    model.StatusWorking,
		Activity:  model.ActivityActive,
		Branch:    "feat/x",
		PR:        &model.PR{Number: 7, URL: "https://github.com/acme/widgets/pull/7"},
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "proj-1")
	require.Contains(t, out.String(), "working")
	require.Contains(t, out.String(), "#7")
}

func TestPrintSessionsRendersOneRowPerSession(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printSessions(cmd, []*model.Session{
		{ID: "proj-1", ProjectID: "proj", Status: model.StatusWorking, Activity: model.ActivityActive},
		{ID: "proj-2", ProjectID: "proj", Status: model.StatusDone, Activity: model.ActivityIdle},
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "proj-1")
	require.Contains(t, out.String(), "proj-2")
}
