// Package session implements session creation and retirement: spawn,
// spawnOrchestrator, list, get, kill, send, restore, and cleanup. It is the
// one component that calls runtime/agent/workspace/tracker plugins outside
// of the lifecycle manager's polling loop.
package session

import (
	"fmt"
	"sync"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/paths"
	"github.com/ao-project/ao/internal/plugin"
)

// ProjectRuntime bundles a configured project with the resolved on-disk
// layout and metadata store it owns.
type ProjectRuntime struct {
	ID      string
	Config  config.Project
	Model   model.Project
	Store   *metadata.Store
	BaseDir string
}

// Manager owns session creation/retirement for every configured project.
type Manager struct {
	reg      *plugin.Registry
	projects map[string]*ProjectRuntime
	logbook  *logbook.Logbook
	obs      *obslog.Logger

	// mu serializes spawn's ID-allocation scan-then-write so two concurrent
	// spawns against the same project never compute the same N.
	mu sync.Mutex
}

// NewManager resolves each configured project's on-disk layout (creating the
// sessions/archive directories) and returns a Manager ready to serve
// requests.
func NewManager(reg *plugin.Registry, cfg *config.Config, configPath string, lb *logbook.Logbook, obs *obslog.Logger) (*Manager, error) {
	home, err := paths.Home(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("session: resolve home: %w", err)
	}

	projects := make(map[string]*ProjectRuntime, len(cfg.Projects))
	for id, proj := range cfg.Projects {
		if err := paths.ValidatePrefix(proj.Prefix); err != nil {
			return nil, fmt.Errorf("session: project %s: %w", id, err)
		}
		baseDir, err := paths.ProjectBaseDir(home, configPath, proj.Path)
		if err != nil {
			return nil, fmt.Errorf("session: project %s: resolve base dir: %w", id, err)
		}
		if err := paths.EnsureLayout(baseDir); err != nil {
			return nil, fmt.Errorf("session: project %s: %w", id, err)
		}
		store := metadata.New(paths.SessionsDir(baseDir))
		if err := store.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("session: project %s: %w", id, err)
		}
		projects[id] = &ProjectRuntime{
			ID:     id,
			Config: proj,
			Model: model.Project{
				ID:            id,
				Prefix:        proj.Prefix,
				Path:          proj.Path,
				DefaultBranch: proj.DefaultBranch,
			},
			Store:   store,
			BaseDir: baseDir,
		}
	}

	return &Manager{reg: reg, projects: projects, logbook: lb, obs: obs}, nil
}

func (m *Manager) project(id string) (*ProjectRuntime, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, newErr(KindUnknownProject, "resolve-project", fmt.Errorf("unknown project %q", id))
	}
	return p, nil
}

// Projects returns every configured project's runtime bundle, for callers (e.g. the CLI)
// that iterate "every project" without a lifecycle manager in hand.
func (m *Manager) Projects() []*ProjectRuntime {
	out := make([]*ProjectRuntime, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out
}
