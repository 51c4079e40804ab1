package gitworkspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/model"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestCreateMaterializesWorktreeOnNewBranch(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	info, err := ws.Create(ctx, model.LaunchConfig{SessionID: "proj-1", Branch: "feature/proj-1"}, model.Project{Path: repoDir, DefaultBranch: "main"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(repoDir, "worktree", "proj-1"), info.Path)
	require.Equal(t, "feature/proj-1", info.Branch)

	gotBranch, err := currentBranch(ctx, info.Path)
	require.NoError(t, err)
	require.Equal(t, "feature/proj-1", gotBranch)
}

func TestCreateDefaultsBranchNameFromSessionID(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	info, err := ws.Create(ctx, model.LaunchConfig{SessionID: "proj-2"}, model.Project{Path: repoDir, DefaultBranch: "main"})
	require.NoError(t, err)
	require.Equal(t, "ao/proj-2", info.Branch)
}

func TestExistsReportsWorktreePresence(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	info, err := ws.Create(ctx, model.LaunchConfig{SessionID: "proj-3"}, model.Project{Path: repoDir, DefaultBranch: "main"})
	require.NoError(t, err)

	exists, err := ws.Exists(ctx, info.Path)
	require.NoError(t, err)
	require.True(t, exists)

	missing, err := ws.Exists(ctx, filepath.Join(repoDir, "worktree", "nope"))
	require.NoError(t, err)
	require.False(t, missing)
}

func TestDestroyRemovesWorktreeAndMergedBranch(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	info, err := ws.Create(ctx, model.LaunchConfig{SessionID: "proj-4", Branch: "feature/proj-4"}, model.Project{Path: repoDir, DefaultBranch: "main"})
	require.NoError(t, err)

	require.NoError(t, ws.Destroy(ctx, info.Path))

	_, statErr := os.Stat(info.Path)
	require.True(t, os.IsNotExist(statErr))

	out, err := runGit(ctx, repoDir, "branch", "--list", "feature/proj-4")
	require.NoError(t, err)
	require.Empty(t, out, "a fully merged branch should be pruned on destroy")
}

func TestListEnumeratesLinkedWorktrees(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()

	_, err := ws.Create(ctx, model.LaunchConfig{SessionID: "proj-5", Branch: "feature/proj-5"}, model.Project{Path: repoDir, DefaultBranch: "main"})
	require.NoError(t, err)

	infos, err := ws.List(ctx, repoDir)
	require.NoError(t, err)

	var found bool
	for _, info := range infos {
		if info.Branch == "feature/proj-5" {
			found = true
		}
	}
	require.True(t, found, "the created worktree must appear in List")
}

func TestRestoreReattachesToExistingWorktree(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()
	cfg := model.LaunchConfig{SessionID: "proj-6", Branch: "feature/proj-6"}
	project := model.Project{Path: repoDir, DefaultBranch: "main"}

	_, err := ws.Create(ctx, cfg, project)
	require.NoError(t, err)

	info, err := ws.Restore(ctx, cfg, project)
	require.NoError(t, err)
	require.Equal(t, "feature/proj-6", info.Branch)
}

func TestRestoreFailsWhenWorktreeIsGone(t *testing.T) {
	repoDir := initTestRepo(t)
	ws := New()
	ctx := context.Background()
	cfg := model.LaunchConfig{SessionID: "proj-7"}
	project := model.Project{Path: repoDir, DefaultBranch: "main"}

	_, err := ws.Restore(ctx, cfg, project)
	require.Error(t, err)
}
