// Package gitworkspace implements the Workspace plugin slot as a linked git
// worktree per session. go-git opens the repository and resolves its
// default branch read-only; worktree creation, removal, and branch pruning
// shell out to the git CLI, mirroring therealtimex-entire-cli's
// git_operations.go, which documents the same split: go-git v5 has no
// linked-worktree support and its Checkout/fetch paths have known bugs
// (deleting untracked files, ignoring credential helpers) that the CLI does
// not share.
package gitworkspace

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/plugin"
)

// Workspace is the git-worktree-backed implementation of plugin.Workspace.
type Workspace struct{}

// New constructs a git-worktree workspace plugin.
func New() *Workspace { return &Workspace{} }

func worktreeDir(projectPath, sessionID string) string {
	return filepath.Join(projectPath, "worktree", sessionID)
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("gitworkspace: git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// resolveDefaultBranch mirrors git_operations.go's getDefaultBranchFromRemote:
// prefer origin/HEAD's symbolic target, then fall back to origin/main or
// origin/master, and finally the project's configured default.
func resolveDefaultBranch(repo *git.Repository, configured string) string {
	if ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", "HEAD"), true); err == nil && ref != nil {
		target := ref.Target().String()
		if strings.HasPrefix(target, "refs/remotes/origin/") {
			return strings.TrimPrefix(target, "refs/remotes/origin/")
		}
	}
	for _, candidate := range []string{"main", "master"} {
		if _, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", candidate), true); err == nil {
			return candidate
		}
	}
	return configured
}

// Create materializes a linked worktree at <projectPath>/worktree/<sessionID>
// on a freshly created branch cut from the project's default branch.
func (w *Workspace) Create(ctx context.Context, cfg model.LaunchConfig, project model.Project) (model.WorkspaceInfo, error) {
	repo, err := git.PlainOpen(project.Path)
	if err != nil {
		return model.WorkspaceInfo{}, fmt.Errorf("gitworkspace: open %s: %w", project.Path, err)
	}
	base := resolveDefaultBranch(repo, project.DefaultBranch)
	if base == "" {
		return model.WorkspaceInfo{}, fmt.Errorf("gitworkspace: could not resolve a default branch for %s", project.Path)
	}

	branch := cfg.Branch
	if branch == "" {
		branch = fmt.Sprintf("ao/%s", cfg.SessionID)
	}
	dir := worktreeDir(project.Path, cfg.SessionID)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return model.WorkspaceInfo{}, fmt.Errorf("gitworkspace: prepare worktree parent: %w", err)
	}

	if _, err := runGit(ctx, project.Path, "worktree", "add", "-b", branch, dir, base); err != nil {
		return model.WorkspaceInfo{}, err
	}
	return model.WorkspaceInfo{Path: dir, Branch: branch}, nil
}

// Destroy removes the linked worktree and, if its branch is fully merged,
// deletes it too; a branch with unmerged commits is kept.
func (w *Workspace) Destroy(ctx context.Context, path string) error {
	projectPath, err := projectPathFromWorktree(path)
	if err != nil {
		return err
	}

	branch, branchErr := currentBranch(ctx, path)

	if _, err := runGit(ctx, projectPath, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	if branchErr != nil || branch == "" {
		return nil
	}
	// "branch -d" fails (rather than silently deleting) when the branch has
	// unmerged commits, exactly the case this otherwise-best-effort prune
	// should leave alone, so its error is swallowed.
	_, _ = runGit(ctx, projectPath, "branch", "-d", branch)
	return nil
}

func currentBranch(ctx context.Context, worktreePath string) (string, error) {
	out, err := runGit(ctx, worktreePath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// projectPathFromWorktree walks a linked worktree's .git file back to the
// bare repository's working directory, since Destroy/List are only handed
// the worktree path, not the originating project.
func projectPathFromWorktree(worktreePath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(worktreePath, ".git"))
	if err != nil {
		return "", fmt.Errorf("gitworkspace: %s is not a linked worktree: %w", worktreePath, err)
	}
	line := strings.TrimSpace(string(data))
	gitdir := strings.TrimPrefix(line, "gitdir: ")
	// gitdir looks like <projectPath>/.git/worktrees/<sessionID>
	worktreesDir := filepath.Dir(gitdir)
	dotGit := filepath.Dir(worktreesDir)
	return filepath.Dir(dotGit), nil
}

// List enumerates every worktree git reports for the repository at
// projectPath, the main working tree included. The argument is a repository
// path rather than a project id, since this plugin has no config or registry
// access to resolve an id to a path.
func (w *Workspace) List(ctx context.Context, projectPath string) ([]model.WorkspaceInfo, error) {
	out, err := runGit(ctx, projectPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []model.WorkspaceInfo {
	var (
		infos   []model.WorkspaceInfo
		current model.WorkspaceInfo
		have    bool
	)
	flush := func() {
		if have && current.Path != "" {
			infos = append(infos, current)
		}
		current = model.WorkspaceInfo{}
		have = false
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
			have = true
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return infos
}

// Exists reports whether path is a directory containing a linked worktree's
// .git file.
func (w *Workspace) Exists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// Restore re-attaches to a worktree directory that is still present on
// disk; it never recreates one, since that would silently discard whatever
// local state the session left behind.
func (w *Workspace) Restore(ctx context.Context, cfg model.LaunchConfig, project model.Project) (model.WorkspaceInfo, error) {
	dir := worktreeDir(project.Path, cfg.SessionID)
	exists, err := w.Exists(ctx, dir)
	if err != nil || !exists {
		return model.WorkspaceInfo{}, plugin.ErrRestoreUnsupported
	}
	branch, err := currentBranch(ctx, dir)
	if err != nil {
		return model.WorkspaceInfo{}, plugin.ErrRestoreUnsupported
	}
	return model.WorkspaceInfo{Path: dir, Branch: branch}, nil
}
