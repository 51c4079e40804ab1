// Package paths derives the on-disk layout the orchestrator uses for a
// project: a base directory keyed by a hash of the config and project paths,
// and the sessions/archive subtrees beneath it.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultHomeDirName = ".agent-orchestrator"

var prefixPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePrefix reports whether a session-id prefix is well-formed.
func ValidatePrefix(prefix string) error {
	if prefix == "" || !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("paths: invalid session prefix %q", prefix)
	}
	return nil
}

// Hash12 returns the first 12 hex characters of a sha256 digest over the
// absolute config path joined with the absolute project path. It is
// deterministic across runs and unique per (config, project) pair.
func Hash12(configPath, projectPath string) (string, error) {
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("paths: resolve config path: %w", err)
	}
	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return "", fmt.Errorf("paths: resolve project path: %w", err)
	}
	sum := sha256.Sum256([]byte(absConfig + "\x00" + absProject))
	return hex.EncodeToString(sum[:])[:12], nil
}

func sanitizeBasename(projectPath string) string {
	base := filepath.Base(filepath.Clean(projectPath))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "project"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Home resolves the orchestrator home directory: an explicit override, or
// .agent-orchestrator under the user's home directory.
func Home(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("paths: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultHomeDirName), nil
}

// ProjectBaseDir computes <home>/<hash12>-<sanitized-basename> for a project.
func ProjectBaseDir(home, configPath, projectPath string) (string, error) {
	hash, err := Hash12(configPath, projectPath)
	if err != nil {
		return "", err
	}
	dirName := fmt.Sprintf("%s-%s", hash, sanitizeBasename(projectPath))
	return filepath.Join(home, dirName), nil
}

// SessionsDir returns <projectBaseDir>/sessions.
func SessionsDir(projectBaseDir string) string {
	return filepath.Join(projectBaseDir, "sessions")
}

// ArchiveDir returns <projectBaseDir>/sessions/archive.
func ArchiveDir(projectBaseDir string) string {
	return filepath.Join(SessionsDir(projectBaseDir), "archive")
}

// EnsureLayout creates the sessions and archive directories for a project.
func EnsureLayout(projectBaseDir string) error {
	if err := os.MkdirAll(SessionsDir(projectBaseDir), 0o755); err != nil {
		return fmt.Errorf("paths: ensure sessions dir: %w", err)
	}
	if err := os.MkdirAll(ArchiveDir(projectBaseDir), 0o755); err != nil {
		return fmt.Errorf("paths: ensure archive dir: %w", err)
	}
	return nil
}

var idPattern = regexp.MustCompile(`^([a-zA-Z0-9_-]+)-(\d+|orchestrator)$`)

// ParseID splits a session id into its prefix and suffix ("N" or
// "orchestrator").
func ParseID(id string) (prefix, suffix string, ok bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FormatID renders "<prefix>-<n>".
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

// OrchestratorID renders "<prefix>-orchestrator".
func OrchestratorID(prefix string) string {
	return fmt.Sprintf("%s-orchestrator", prefix)
}
