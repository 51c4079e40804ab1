// Package metadata implements the on-disk session record format: one
// key=value text file per session, written atomically via a temp file plus
// rename, with an archive directory for retired sessions.
package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Archive when the session has no active
// metadata file, and by RestoreFromArchive when it has no archive entry.
// Read reports a missing session as (nil, nil) instead.
var ErrNotFound = errors.New("metadata: session not found")

// Fields is the parsed key=value content of a session record.
type Fields map[string]string

// Store reads and writes session records under sessionsDir, with an
// "archive" subdirectory holding retired snapshots.
type Store struct {
	sessionsDir string
	archiveDir  string
	now         func() time.Time
}

// New returns a Store rooted at sessionsDir. It does not create directories;
// call EnsureDirs first.
func New(sessionsDir string) *Store {
	return &Store{
		sessionsDir: sessionsDir,
		archiveDir:  filepath.Join(sessionsDir, "archive"),
		now:         time.Now,
	}
}

// WithClock overrides the time source used for archive timestamps. Intended
// for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// EnsureDirs creates the sessions and archive directories.
func (s *Store) EnsureDirs() error {
	if err := os.MkdirAll(s.sessionsDir, 0o755); err != nil {
		return fmt.Errorf("metadata: ensure sessions dir: %w", err)
	}
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("metadata: ensure archive dir: %w", err)
	}
	return nil
}

func (s *Store) activePath(id string) string {
	return filepath.Join(s.sessionsDir, id)
}

// Write replaces the session's record atomically.
func (s *Store) Write(id string, fields Fields) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	data := encode(fields)
	path := s.activePath(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("metadata: write %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("metadata: rename %s: %w", id, err)
	}
	return nil
}

// Read loads a session's fields. It returns (nil, nil) if the session does
// not exist.
func (s *Store) Read(id string) (Fields, error) {
	data, err := os.ReadFile(s.activePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: read %s: %w", id, err)
	}
	return decode(data), nil
}

// Update reads, merges, and atomically rewrites a session's fields. An empty
// string value deletes the key. Missing sessions are treated as empty.
func (s *Store) Update(id string, patch Fields) (Fields, error) {
	existing, err := s.Read(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = Fields{}
	}
	for k, v := range patch {
		if v == "" {
			delete(existing, k)
			continue
		}
		existing[k] = v
	}
	if err := s.Write(id, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Archive moves the active record to archive/<id>_<iso-timestamp-with-colons-replaced>
// and removes the active file.
func (s *Store) Archive(id string) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	active := s.activePath(id)
	data, err := os.ReadFile(active)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("metadata: read %s: %w", id, err)
	}
	stamp := archiveTimestamp(s.now())
	dest := filepath.Join(s.archiveDir, fmt.Sprintf("%s_%s", id, stamp))
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("metadata: write archive %s: %w", id, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("metadata: rename archive %s: %w", id, err)
	}
	if err := os.Remove(active); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("metadata: remove active %s: %w", id, err)
	}
	return nil
}

// RestoreFromArchive copies the lexicographically greatest archive entry for
// id back into the active slot and returns its fields.
func (s *Store) RestoreFromArchive(id string) (Fields, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("metadata: read archive dir: %w", err)
	}
	prefix := id + "_"
	var best string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if name > best {
			best = name
		}
	}
	if best == "" {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.archiveDir, best))
	if err != nil {
		return nil, fmt.Errorf("metadata: read archive entry %s: %w", best, err)
	}
	if err := s.EnsureDirs(); err != nil {
		return nil, err
	}
	active := s.activePath(id)
	tmp := active + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, fmt.Errorf("metadata: restore write %s: %w", id, err)
	}
	if err := os.Rename(tmp, active); err != nil {
		return nil, fmt.Errorf("metadata: restore rename %s: %w", id, err)
	}
	return decode(data), nil
}

// List returns the ids of all non-hidden regular files directly under
// sessionsDir, excluding the archive directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: list %s: %w", s.sessionsDir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListArchived returns the archive entry names (id_timestamp) present for id,
// sorted ascending.
func (s *Store) ListArchived(id string) ([]string, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: list archive %s: %w", s.archiveDir, err)
	}
	prefix := id + "_"
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// AllArchivedIDs returns the distinct session ids present anywhere in the
// archive directory, derived by splitting each entry name on its last
// underscore (the single separator Archive inserts between id and
// timestamp). Used by id allocation, which must never reuse an id still
// present in archive.
func (s *Store) AllArchivedIDs() ([]string, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: read archive dir: %w", err)
	}
	seen := map[string]struct{}{}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		idx := strings.LastIndex(name, "_")
		if idx < 0 {
			continue
		}
		id := name[:idx]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func archiveTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}

func encode(fields Fields) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func decode(data []byte) Fields {
	fields := Fields{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		fields[line[:idx]] = line[idx+1:]
	}
	return fields
}
