// Package evidence parses the four JSON artifacts a worker session writes to
// attest to what it did, and classifies the bundle as missing, incomplete,
// or complete.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SchemaVersion is the evidence file format version written by Init and
// expected by Parse; callers that compose launch environments advertise it
// to the worker via AO_EVIDENCE_SCHEMA_VERSION.
const SchemaVersion = "1"

const schemaVersion = SchemaVersion

// Kind names one of the four evidence files.
type Kind string

const (
	KindCommandLog   Kind = "command-log"
	KindTestsRun     Kind = "tests-run"
	KindChangedPaths Kind = "changed-paths"
	KindKnownRisks   Kind = "known-risks"
)

var allKinds = []Kind{KindCommandLog, KindTestsRun, KindChangedPaths, KindKnownRisks}

func fileName(kind Kind) string { return string(kind) + ".json" }

// Dir returns <workspacePath>/.ao/evidence/<sessionID>.
func Dir(workspacePath, sessionID string) string {
	return filepath.Join(workspacePath, ".ao", "evidence", sessionID)
}

func path(workspacePath, sessionID string, kind Kind) string {
	return filepath.Join(Dir(workspacePath, sessionID), fileName(kind))
}

// skeleton is the shared envelope every evidence file carries.
type skeleton struct {
	SchemaVersion string `json:"schemaVersion"`
	Complete      bool   `json:"complete"`
}

// FileStatus classifies a single evidence file.
type FileStatus string

const (
	FileMissing    FileStatus = "missing"
	FileInvalid    FileStatus = "invalid"
	FileIncomplete FileStatus = "incomplete"
	FileComplete   FileStatus = "complete"
)

// BundleStatus classifies the aggregate evidence bundle.
type BundleStatus string

const (
	BundleMissing    BundleStatus = "missing"
	BundleIncomplete BundleStatus = "incomplete"
	BundleComplete   BundleStatus = "complete"
)

// Bundle is the result of parsing a session's evidence directory.
type Bundle struct {
	Status      BundleStatus
	PerFile     map[Kind]FileStatus
	Fingerprint string
}

// payloadKey names the domain-specific array key each evidence file carries.
var payloadKey = map[Kind]string{
	KindCommandLog:   "entries",
	KindTestsRun:     "tests",
	KindChangedPaths: "paths",
	KindKnownRisks:   "risks",
}

// Init creates the evidence directory and writes four skeleton files
// (schemaVersion=1, complete=false) with their empty domain array, as spawn
// does before the workspace and runtime are created.
func Init(workspacePath, sessionID string) error {
	dir := Dir(workspacePath, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("evidence: ensure dir: %w", err)
	}
	for _, kind := range allKinds {
		key := payloadKey[kind]
		body := fmt.Sprintf(`{"schemaVersion":%q,"complete":false,%q:[]}`, schemaVersion, key)
		if err := os.WriteFile(path(workspacePath, sessionID, kind), []byte(body), 0o644); err != nil {
			return fmt.Errorf("evidence: write %s skeleton: %w", kind, err)
		}
	}
	return nil
}

// Parse classifies the four evidence files under a session's workspace.
func Parse(workspacePath, sessionID string) (Bundle, error) {
	bundle := Bundle{PerFile: make(map[Kind]FileStatus, len(allKinds))}
	var fingerprintParts []string
	anyPresent := false
	allComplete := true

	for _, kind := range allKinds {
		p := path(workspacePath, sessionID, kind)
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				bundle.PerFile[kind] = FileMissing
				allComplete = false
				continue
			}
			return Bundle{}, fmt.Errorf("evidence: stat %s: %w", p, err)
		}
		anyPresent = true
		fingerprintParts = append(fingerprintParts, fmt.Sprintf("%s:%d:%d", p, info.Size(), info.ModTime().UnixNano()))

		data, err := os.ReadFile(p)
		if err != nil {
			return Bundle{}, fmt.Errorf("evidence: read %s: %w", p, err)
		}
		var sk skeleton
		if err := json.Unmarshal(data, &sk); err != nil {
			bundle.PerFile[kind] = FileInvalid
			allComplete = false
			continue
		}
		if !sk.Complete {
			bundle.PerFile[kind] = FileIncomplete
			allComplete = false
			continue
		}
		bundle.PerFile[kind] = FileComplete
	}

	switch {
	case !anyPresent:
		bundle.Status = BundleMissing
	case allComplete:
		bundle.Status = BundleComplete
	default:
		bundle.Status = BundleIncomplete
	}
	bundle.Fingerprint = strings.Join(fingerprintParts, "|")
	return bundle, nil
}
