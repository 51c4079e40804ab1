// Package config loads ao.yaml: the orchestrator home directory, the
// projects it supervises, their plugin selections and policies, and the
// reaction/notification wiring the lifecycle manager executes against.
//
// This package is an external collaborator of the core managers, not part of
// them: Load returns plain Go structs, and internal/session and
// internal/lifecycle are built from those structs rather than parsing YAML
// themselves.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# agent-orchestrator configuration
version: 1
home: ~/.agent-orchestrator
poll:
  interval: 30s
projects: {}
plugins:
  declarations: []
`

// PluginSelection names the plugin instance a project uses for each slot.
type PluginSelection struct {
	Runtime   string `yaml:"runtime"`
	Workspace string `yaml:"workspace"`
	SCM       string `yaml:"scm"`
	Tracker   string `yaml:"tracker"`
	Agent     string `yaml:"agent"`
}

// SpawnPolicy governs session creation.
type SpawnPolicy struct {
	RequireValidatedPlanTask bool `yaml:"requireValidatedPlanTask"`
	// MaxParallel caps how many non-exclusive sessions a project may run at
	// once; <= 0 leaves admission uncapped. Enforced by the scheduler
	// package against "aod spawn-batch", not by Spawn itself.
	MaxParallel int `yaml:"maxParallel,omitempty"`
}

// ReviewerPolicy governs the reviewer gate.
type ReviewerPolicy struct {
	ReviewerCount             int      `yaml:"reviewerCount"`
	MinReviewerAgentApprovals int      `yaml:"minReviewerAgentApprovals"`
	RequireEvidence           bool     `yaml:"requireEvidence"`
	MaxCycles                 int      `yaml:"maxCycles"`
	Pool                      []string `yaml:"pool,omitempty"`
}

// Policies bundles a project's spawn and reviewer policy configuration.
type Policies struct {
	Spawn    SpawnPolicy    `yaml:"spawn"`
	Reviewer ReviewerPolicy `yaml:"reviewer"`
}

// EscalationPolicy is the per-level retry/time-threshold configuration for a
// reaction's escalation ladder.
type EscalationPolicy struct {
	RetryCounts      LevelInts      `yaml:"retryCounts"`
	TimeThresholdsMs LevelDurations `yaml:"timeThresholdsMs"`
}

// LevelInts gives one integer per escalation level.
type LevelInts struct {
	Worker       int `yaml:"worker"`
	Verifier     int `yaml:"verifier"`
	Orchestrator int `yaml:"orchestrator"`
}

// LevelDurations gives one nullable millisecond duration per escalation
// level; zero means "no time-based promotion at this level".
type LevelDurations struct {
	Worker       int64 `yaml:"worker"`
	Verifier     int64 `yaml:"verifier"`
	Orchestrator int64 `yaml:"orchestrator"`
}

// Reaction configures the automated response to one event type.
type Reaction struct {
	Action     string           `yaml:"action"` // send-to-agent | notify | auto-merge
	Message    string           `yaml:"message,omitempty"`
	Auto       *bool            `yaml:"auto,omitempty"`
	Retries    int              `yaml:"retries,omitempty"`
	Escalation EscalationPolicy `yaml:"escalation,omitempty"`
}

// AutoOrDefault reports the effective "auto" flag; reactions default to
// auto-triggering unless explicitly disabled.
func (r Reaction) AutoOrDefault() bool {
	if r.Auto == nil {
		return true
	}
	return *r.Auto
}

// Project is one supervised repository and its plugin/policy configuration.
type Project struct {
	Prefix              string              `yaml:"prefix"`
	Path                string              `yaml:"path"`
	DefaultBranch       string              `yaml:"defaultBranch"`
	Plugins             PluginSelection     `yaml:"plugins"`
	Policies            Policies            `yaml:"policies"`
	Reactions           map[string]Reaction `yaml:"reactions"`
	NotificationRouting map[string][]string `yaml:"notificationRouting"`
}

// PollConfig controls the lifecycle manager's polling loop.
type PollConfig struct {
	Interval time.Duration `yaml:"-"`
	Raw      string        `yaml:"interval"`
}

// PluginsConfig lists config-declared (dynamically loaded) plugins.
type PluginsConfig struct {
	Declarations []DeclarationConfig `yaml:"declarations"`
}

// DeclarationConfig is the YAML shape of a config-declared plugin; it is
// converted to plugin.Declaration by the caller to avoid this package
// depending on internal/plugin.
type DeclarationConfig struct {
	Slot   string         `yaml:"slot"`
	Name   string         `yaml:"name"`
	Source string         `yaml:"source"`
	Config map[string]any `yaml:"config,omitempty"`
}

// Config is the fully parsed and validated ao.yaml.
type Config struct {
	Version  int                `yaml:"version"`
	Home     string             `yaml:"home"`
	Poll     PollConfig         `yaml:"poll"`
	Projects map[string]Project `yaml:"projects"`
	Plugins  PluginsConfig      `yaml:"plugins"`
}

// Load reads and validates ao.yaml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the starter ao.yaml template to path if it does not
// already exist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if strings.TrimSpace(c.Home) == "" {
		c.Home = "~/.agent-orchestrator"
	}
	if strings.TrimSpace(c.Poll.Raw) == "" {
		c.Poll.Raw = "30s"
	}
	for id, project := range c.Projects {
		if project.Plugins.Runtime == "" {
			project.Plugins.Runtime = "tmux"
		}
		if project.Plugins.Workspace == "" {
			project.Plugins.Workspace = "git-worktree"
		}
		if project.Plugins.SCM == "" {
			project.Plugins.SCM = "github"
		}
		if project.Plugins.Tracker == "" {
			project.Plugins.Tracker = "github-issues"
		}
		if project.Plugins.Agent == "" {
			project.Plugins.Agent = "claude-code"
		}
		if project.Policies.Reviewer.ReviewerCount < 2 {
			project.Policies.Reviewer.ReviewerCount = 2
		}
		if project.Policies.Reviewer.MinReviewerAgentApprovals == 0 {
			project.Policies.Reviewer.MinReviewerAgentApprovals = 2
		}
		if project.Policies.Reviewer.MaxCycles == 0 {
			project.Policies.Reviewer.MaxCycles = 3
		}
		if project.DefaultBranch == "" {
			project.DefaultBranch = "main"
		}
		c.Projects[id] = project
	}
}

func (c *Config) normalize() error {
	interval, err := time.ParseDuration(strings.TrimSpace(c.Poll.Raw))
	if err != nil {
		return fmt.Errorf("config: poll.interval %q: %w", c.Poll.Raw, err)
	}
	c.Poll.Interval = interval
	return nil
}

func (c *Config) validate() error {
	if c.Projects == nil {
		c.Projects = map[string]Project{}
	}
	seenPrefix := map[string]string{}
	for id, project := range c.Projects {
		if strings.TrimSpace(project.Prefix) == "" {
			return fmt.Errorf("config: project %s: prefix is required", id)
		}
		if strings.TrimSpace(project.Path) == "" {
			return fmt.Errorf("config: project %s: path is required", id)
		}
		if other, exists := seenPrefix[project.Prefix]; exists && other != id {
			return fmt.Errorf("config: prefix %q used by both %s and %s", project.Prefix, other, id)
		}
		seenPrefix[project.Prefix] = id
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user home: %w", err)
	}
	return home + strings.TrimPrefix(path, "~"), nil
}
