// Package cliagent implements the Agent plugin slot for any coding-agent
// CLI that is launched as a single shell command and speaks through a
// terminal: "claude-code" and "generic" are both instances of this one
// type, differing only in their launch/resume command shape and the
// regexes used to recognize idle and waiting-for-input terminal states,
// in the spirit of therealtimex-entire-cli's agent.Agent
// interface/registry split between a shared contract and small
// per-CLI implementations (claudecode.ClaudeCodeAgent and its siblings).
package cliagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/ao-project/ao/internal/model"
)

// Config describes one CLI agent's launch shape and activity-detection
// patterns.
type Config struct {
	// Name is the plugin's registered name ("claude-code", "generic", ...).
	Name string
	// Binary is the executable to invoke.
	Binary string
	// PromptFlag is the flag the prompt text is passed under, e.g. "-p".
	// Empty means the prompt is appended as a bare positional argument.
	PromptFlag string
	// ExtraArgs are appended before the prompt argument on every launch.
	ExtraArgs []string
	// ResumeFlag is the flag used to resume a prior session by id, e.g.
	// "-r". Empty means this agent has no distinct resume command, and
	// GetRestoreCommand falls back to GetLaunchCommand.
	ResumeFlag string
	// WaitingInputPatterns match terminal output indicating the agent is
	// blocked on a prompt only a human (or a send-to-agent reaction) can
	// answer.
	WaitingInputPatterns []string
	// IdlePatterns match terminal output indicating the agent has returned
	// to an idle shell prompt.
	IdlePatterns []string
	// HookConfigDir is the directory (relative to the workspace root) this
	// agent reads lifecycle hook configuration from, e.g. ".claude". Empty
	// disables SetupWorkspaceHooks.
	HookConfigDir string
}

// ClaudeCode returns the preset configuration for Anthropic's claude CLI.
func ClaudeCode() Config {
	return Config{
		Name:       "claude-code",
		Binary:     "claude",
		PromptFlag: "-p",
		ExtraArgs:  []string{"--dangerously-skip-permissions"},
		ResumeFlag: "-r",
		WaitingInputPatterns: []string{
			`(?i)do you want to proceed`,
			`(?i)\(y/n\)\s*$`,
			`(?i)waiting for your (response|input)`,
		},
		IdlePatterns: []string{
			`(?m)^>\s*$`,
		},
		HookConfigDir: ".claude",
	}
}

// Generic returns a permissive preset for an arbitrary CLI agent that
// accepts its prompt as a bare positional argument and offers no distinct
// resume command.
func Generic(binary string) Config {
	return Config{
		Name:       "generic",
		Binary:     binary,
		WaitingInputPatterns: []string{
			`(?i)\(y/n\)\s*$`,
			`(?i)press enter to continue`,
		},
		IdlePatterns: []string{
			`(?m)^\$\s*$`,
		},
	}
}

// Agent is the config-driven implementation of plugin.Agent.
type Agent struct {
	cfg     Config
	waiting []*regexp.Regexp
	idle    []*regexp.Regexp
}

// New compiles cfg's activity patterns and returns a ready Agent.
func New(cfg Config) (*Agent, error) {
	waiting, err := compileAll(cfg.WaitingInputPatterns)
	if err != nil {
		return nil, fmt.Errorf("cliagent: %s: waiting-input pattern: %w", cfg.Name, err)
	}
	idle, err := compileAll(cfg.IdlePatterns)
	if err != nil {
		return nil, fmt.Errorf("cliagent: %s: idle pattern: %w", cfg.Name, err)
	}
	return &Agent{cfg: cfg, waiting: waiting, idle: idle}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// GetLaunchCommand renders the shell command that starts this agent on the
// given prompt.
func (a *Agent) GetLaunchCommand(cfg model.LaunchConfig) (string, error) {
	parts := []string{a.cfg.Binary}
	parts = append(parts, a.cfg.ExtraArgs...)
	if a.cfg.PromptFlag != "" {
		parts = append(parts, a.cfg.PromptFlag, shellQuote(cfg.Prompt))
	} else {
		parts = append(parts, shellQuote(cfg.Prompt))
	}
	return strings.Join(parts, " "), nil
}

// GetEnvironment returns the environment variables the launch process
// should start with, identifying the session to anything the agent's own
// hooks or tooling inspects.
func (a *Agent) GetEnvironment(cfg model.LaunchConfig) (map[string]string, error) {
	return map[string]string{
		"AO_SESSION_ID": cfg.SessionID,
		"AO_PROJECT_ID": cfg.ProjectID,
		"AO_ISSUE_ID":   cfg.IssueID,
	}, nil
}

// DetectActivity classifies terminal output as waiting-on-input, idle, or
// (the default) active.
func (a *Agent) DetectActivity(output string) model.Activity {
	for _, re := range a.waiting {
		if re.MatchString(output) {
			return model.ActivityWaitingInput
		}
	}
	for _, re := range a.idle {
		if re.MatchString(output) {
			return model.ActivityIdle
		}
	}
	return model.ActivityActive
}

// IsProcessRunning opportunistically reads a pid out of the runtime
// handle's opaque data (every builtin Runtime that exposes one names it
// "pid" or "attachPid") and signals it with 0 to check liveness without
// actually sending a signal. When the handle carries no recognizable pid,
// this returns true: "unknown" defaults to "still running" rather than
// triggering a false kill, matching GetActivityState's own (nil, nil)
// "no signal" convention for this package.
func (a *Agent) IsProcessRunning(ctx context.Context, handle model.RuntimeHandle) (bool, error) {
	pid, ok := extractPID(handle.Data)
	if !ok {
		return true, nil
	}
	if err := syscall.Kill(pid, 0); err != nil {
		if err == syscall.ESRCH {
			return false, nil
		}
		// EPERM means the process exists but we can't signal it: still running.
		return true, nil
	}
	return true, nil
}

func extractPID(data string) (int, bool) {
	if data == "" {
		return 0, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return 0, false
	}
	for _, key := range []string{"attachPid", "pid"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if f, ok := raw.(float64); ok && f > 0 {
			return int(f), true
		}
	}
	return 0, false
}

// GetRestoreCommand returns the agent's native resume command, or ("", nil)
// to fall back to GetLaunchCommand when this agent has none.
func (a *Agent) GetRestoreCommand(cfg model.LaunchConfig) (string, error) {
	if a.cfg.ResumeFlag == "" {
		return "", nil
	}
	return fmt.Sprintf("%s %s %s", a.cfg.Binary, a.cfg.ResumeFlag, shellQuote(cfg.SessionID)), nil
}

// GetActivityState reports no independent signal: this agent's activity is
// derived entirely from terminal output via DetectActivity, not a
// side-channel transcript.
func (a *Agent) GetActivityState(ctx context.Context, session *model.Session) (*model.Activity, error) {
	return nil, nil
}

// GetSessionInfo reports this plugin's own identity; richer per-agent
// metadata (token usage, model name) would come from parsing a
// transcript this generic implementation does not know the shape of.
func (a *Agent) GetSessionInfo(ctx context.Context, session *model.Session) (map[string]string, error) {
	return map[string]string{"agent": a.cfg.Name}, nil
}

// SetupWorkspaceHooks writes an empty hook-config file into the workspace
// if this agent's preset names a hook directory and one is not already
// present; it never overwrites an existing one.
func (a *Agent) SetupWorkspaceHooks(ctx context.Context, workspacePath string, cfg model.LaunchConfig) error {
	if a.cfg.HookConfigDir == "" {
		return nil
	}
	dir := filepath.Join(workspacePath, a.cfg.HookConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cliagent: create hook dir %s: %w", dir, err)
	}
	settingsPath := filepath.Join(dir, "settings.json")
	if _, err := os.Stat(settingsPath); err == nil {
		return nil
	}
	return os.WriteFile(settingsPath, []byte("{}\n"), 0o644)
}

// PostLaunchSetup is a no-op: this agent needs nothing beyond the process
// already started by the runtime plugin.
func (a *Agent) PostLaunchSetup(ctx context.Context, session *model.Session) error {
	return nil
}
