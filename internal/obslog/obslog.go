// Package obslog is the orchestrator's internal diagnostic logger: one
// structured key=value line per swallowed failure (notifier errors, metrics
// write errors, archive failures under kill) so they remain inspectable
// without surfacing to the user-facing logbook.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields is an ordered set of key=value pairs appended to a log line.
type Fields map[string]string

// Logger writes leveled, structured lines to a single file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// New opens the diagnostic log at path, creating parent directories.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("obslog: ensure dir: %w", err)
	}
	return &Logger{path: path}, nil
}

// Append writes one line: "time=... level=... <fields...>".
func (l *Logger) Append(level Level, fields Fields) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(formatLine(level, fields))
}

func formatLine(level Level, fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("time=")
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	b.WriteString(" level=")
	b.WriteString(string(level))
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(fields[k]))
	}
	b.WriteByte('\n')
	return b.String()
}

func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, " \t\"") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

func (l *Logger) Debug(fields Fields) { l.Append(LevelDebug, fields) }
func (l *Logger) Info(fields Fields)  { l.Append(LevelInfo, fields) }
func (l *Logger) Warn(fields Fields)  { l.Append(LevelWarn, fields) }
func (l *Logger) Error(fields Fields) { l.Append(LevelError, fields) }
