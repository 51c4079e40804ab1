// Package tmuxruntime implements the Runtime plugin slot: one tmux session
// per orchestrator session, attached to through a pty so SendMessage can
// write raw keystrokes the way a human typing at the terminal would,
// grounded on therealtimex-entire-cli's integration_test/interactive.go
// (pty.Start wrapping a long-running interactive process).
package tmuxruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/ao-project/ao/internal/model"
)

// Runtime is the tmux-backed implementation of plugin.Runtime. Each session
// gets its own tmux session named "ao-<sessionID>"; Create attaches to it
// through a pty with "tmux new-session -A", which creates the session if
// absent and attaches if present, so the same call is safe to repeat after
// an orchestrator restart.
type Runtime struct {
	mu         sync.Mutex
	attachments map[string]*attachment
}

type attachment struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

// New constructs a tmux runtime plugin.
func New() *Runtime {
	return &Runtime{attachments: make(map[string]*attachment)}
}

func windowName(sessionID string) string {
	return "ao-" + sessionID
}

// handleData is the opaque payload carried in model.RuntimeHandle.Data.
type handleData struct {
	Window    string `json:"window"`
	AttachPID int    `json:"attachPid"`
}

// Create starts (or re-attaches to) the session's tmux session and runs the
// agent's resolved launch command inside it.
func (r *Runtime) Create(ctx context.Context, cfg model.LaunchConfig) (model.RuntimeHandle, error) {
	if cfg.Command == "" {
		return model.RuntimeHandle{}, fmt.Errorf("tmuxruntime: launch config has no resolved command")
	}
	window := windowName(cfg.SessionID)

	att, err := r.attach(ctx, window, cfg)
	if err != nil {
		return model.RuntimeHandle{}, err
	}

	data, err := json.Marshal(handleData{Window: window, AttachPID: att.cmd.Process.Pid})
	if err != nil {
		return model.RuntimeHandle{}, fmt.Errorf("tmuxruntime: encode handle: %w", err)
	}
	return model.RuntimeHandle{ID: cfg.SessionID, RuntimeName: "tmux", Data: string(data)}, nil
}

// attach opens a pty-backed "tmux new-session -A" client for window,
// starting the given launch command the first time the session is created.
// Subsequent calls (after a restart, or a retried send) attach to the
// already-running session without re-launching the command.
func (r *Runtime) attach(ctx context.Context, window string, cfg model.LaunchConfig) (*attachment, error) {
	r.mu.Lock()
	if att, ok := r.attachments[window]; ok {
		r.mu.Unlock()
		return att, nil
	}
	r.mu.Unlock()

	command := cfg.Command
	if command == "" {
		// Re-attach only, nothing new to launch.
		command = "true"
	}
	args := []string{"new-session", "-A", "-s", window, "-x", "220", "-y", "50", command}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	if cfg.WorkspacePath != "" {
		cmd.Dir = cfg.WorkspacePath
	}
	if len(cfg.Environment) > 0 {
		env := os.Environ()
		for k, v := range cfg.Environment {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("tmuxruntime: attach %s: %w", window, err)
	}
	att := &attachment{ptmx: ptmx, cmd: cmd}

	r.mu.Lock()
	r.attachments[window] = att
	r.mu.Unlock()
	return att, nil
}

func parseHandle(h model.RuntimeHandle) (handleData, error) {
	var data handleData
	if h.Data == "" {
		return handleData{}, fmt.Errorf("tmuxruntime: handle %s has no data", h.ID)
	}
	if err := json.Unmarshal([]byte(h.Data), &data); err != nil {
		return handleData{}, fmt.Errorf("tmuxruntime: decode handle %s: %w", h.ID, err)
	}
	return data, nil
}

// SendMessage writes text followed by Enter through the tmux pty, attaching
// fresh if this process has no live attachment cached (e.g. after a
// restart).
func (r *Runtime) SendMessage(ctx context.Context, h model.RuntimeHandle, text string) error {
	data, err := parseHandle(h)
	if err != nil {
		return err
	}
	att, err := r.attach(ctx, data.Window, model.LaunchConfig{SessionID: h.ID})
	if err != nil {
		return err
	}
	if _, err := att.ptmx.Write([]byte(text + "\r")); err != nil {
		return fmt.Errorf("tmuxruntime: write to %s: %w", data.Window, err)
	}
	return nil
}

// GetOutput captures the last N lines of the tmux pane's scrollback. It
// shells out directly to "tmux capture-pane" rather than reading the pty,
// since the pty's byte stream is ANSI-interleaved and position-dependent
// while capture-pane always returns the rendered screen.
func (r *Runtime) GetOutput(ctx context.Context, h model.RuntimeHandle, lines int) (string, error) {
	data, err := parseHandle(h)
	if err != nil {
		return "", err
	}
	if lines <= 0 {
		lines = 200
	}
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-t", data.Window, "-p", "-S", "-"+strconv.Itoa(lines))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmuxruntime: capture-pane %s: %w", data.Window, err)
	}
	return string(out), nil
}

// IsAlive reports whether the tmux session named in the handle still
// exists.
func (r *Runtime) IsAlive(ctx context.Context, h model.RuntimeHandle) (bool, error) {
	data, err := parseHandle(h)
	if err != nil {
		return false, err
	}
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", data.Window)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("tmuxruntime: has-session %s: %w", data.Window, err)
	}
	return true, nil
}

// Destroy kills the tmux session and releases any cached pty attachment.
func (r *Runtime) Destroy(ctx context.Context, h model.RuntimeHandle) error {
	data, err := parseHandle(h)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if att, ok := r.attachments[data.Window]; ok {
		_ = att.ptmx.Close()
		delete(r.attachments, data.Window)
	}
	r.mu.Unlock()

	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", data.Window)
	out, err := cmd.CombinedOutput()
	if err != nil && !strings.Contains(string(out), "session not found") {
		return fmt.Errorf("tmuxruntime: kill-session %s: %w: %s", data.Window, err, strings.TrimSpace(string(out)))
	}
	return nil
}
