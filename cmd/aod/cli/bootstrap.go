package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ao-project/ao/internal/builtin/cliagent"
	"github.com/ao-project/ao/internal/builtin/githubscm"
	"github.com/ao-project/ao/internal/builtin/gitworkspace"
	"github.com/ao-project/ao/internal/builtin/issuetracker"
	"github.com/ao-project/ao/internal/builtin/notifiers"
	"github.com/ao-project/ao/internal/builtin/tmuxruntime"
	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/lifecycle"
	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/metrics"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/paths"
	"github.com/ao-project/ao/internal/plugin"
	"github.com/ao-project/ao/internal/session"
)

// appContext carries the flags every subcommand needs to build its own
// session/lifecycle managers. Each invocation builds its own managers rather
// than sharing process-wide state, since aod's CLI subcommands (other than
// serve) are one-shot processes.
type appContext struct {
	configPath *string
}

// app bundles the managers a subcommand dispatches onto.
type app struct {
	cfg       *config.Config
	sessions  *session.Manager
	lifecycle *lifecycle.Manager
	logbook   *logbook.Logbook
}

func (a *appContext) build() (*app, error) {
	path := *a.configPath
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	home, err := paths.Home(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}

	lb, err := logbook.New(filepath.Join(home, "logbook.log"))
	if err != nil {
		return nil, fmt.Errorf("open logbook: %w", err)
	}
	obs, err := obslog.New(filepath.Join(home, "aod.log"))
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log: %w", err)
	}

	reg, err := buildRegistry(cfg, lb)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(reg, cfg, path, lb, obs)
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}

	metricsLogs := make(map[string]*metrics.Log, len(sessions.Projects()))
	for _, project := range sessions.Projects() {
		log, err := metrics.New(filepath.Join(project.BaseDir, "metrics.jsonl"))
		if err != nil {
			return nil, fmt.Errorf("open metrics log for project %s: %w", project.ID, err)
		}
		metricsLogs[project.ID] = log
	}

	lc := lifecycle.NewManager(sessions, reg, metricsLogs, lb, obs, cfg.Poll.Interval)

	return &app{cfg: cfg, sessions: sessions, lifecycle: lc, logbook: lb}, nil
}

// buildRegistry registers every builtin plugin under its stable name, then
// layers config-declared (dynamically loaded) plugins on top: a declared
// plugin may reuse a builtin's name only if the builtin was never
// registered for that slot, since Register rejects duplicates.
func buildRegistry(cfg *config.Config, lb *logbook.Logbook) (*plugin.Registry, error) {
	reg := plugin.NewRegistry()

	reg.MustRegister(plugin.SlotRuntime, "tmux", tmuxruntime.New())
	reg.MustRegister(plugin.SlotWorkspace, "git-worktree", gitworkspace.New())

	scm := githubscm.New(githubscm.Config{
		Token:   os.Getenv("GITHUB_TOKEN"),
		BaseURL: os.Getenv("GITHUB_BASE_URL"),
	})
	reg.MustRegister(plugin.SlotSCM, "github", scm)

	tracker := issuetracker.New(issuetracker.Config{
		Token:   os.Getenv("GITHUB_TOKEN"),
		BaseURL: os.Getenv("GITHUB_BASE_URL"),
	})
	reg.MustRegister(plugin.SlotTracker, "github-issues", tracker)

	claudeCode, err := cliagent.New(cliagent.ClaudeCode())
	if err != nil {
		return nil, fmt.Errorf("build claude-code agent: %w", err)
	}
	reg.MustRegister(plugin.SlotAgent, "claude-code", claudeCode)

	genericBinary := os.Getenv("AO_GENERIC_AGENT_BIN")
	if genericBinary == "" {
		genericBinary = "codex"
	}
	generic, err := cliagent.New(cliagent.Generic(genericBinary))
	if err != nil {
		return nil, fmt.Errorf("build generic agent: %w", err)
	}
	reg.MustRegister(plugin.SlotAgent, "generic", generic)

	reg.MustRegister(plugin.SlotNotifier, "webhook", notifiers.NewWebhook(notifiers.WebhookConfig{
		URL: os.Getenv("AO_WEBHOOK_URL"),
	}))
	reg.MustRegister(plugin.SlotNotifier, "desktop", notifiers.NewDesktop(notifiers.DesktopConfig{}))
	reg.MustRegister(plugin.SlotNotifier, "logonly", notifiers.NewLogOnly(lb))

	declarations := make([]plugin.Declaration, 0, len(cfg.Plugins.Declarations))
	for _, d := range cfg.Plugins.Declarations {
		declarations = append(declarations, plugin.Declaration{
			Slot:   plugin.Slot(d.Slot),
			Name:   d.Name,
			Source: d.Source,
			Config: d.Config,
		})
	}
	if err := plugin.RegisterDeclared(reg, declarations); err != nil {
		return nil, fmt.Errorf("register declared plugins: %w", err)
	}

	return reg, nil
}
