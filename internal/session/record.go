package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
)

// Well-known metadata keys. Any other key present in a session's file is
// preserved verbatim on model.Session.Metadata and round-trips unchanged.
const (
	keyProject         = "project"
	keyStatus          = "status"
	keyBranch          = "branch"
	keyIssue           = "issue"
	keyWorktree        = "worktree"
	keyPR              = "pr"
	keyRuntimeHandle   = "runtimeHandle"
	keyAgent           = "agent"
	keyRuntime         = "runtime"
	keyRole            = "role"
	keyCreatedAt       = "createdAt"
	keyLastActivityAt  = "lastActivityAt"
	keyRestoredAt      = "restoredAt"
	keyPlanID          = "planId"
	keyPlanTaskID      = "planTaskId"
	keyPlanTaskValid   = "planTaskValidated"
	keyEvidenceDir     = "evidenceDir"
	keySummary         = "summary"
)

func fieldsToSession(id string, fields metadata.Fields) *model.Session {
	sess := &model.Session{
		ID:            id,
		ProjectID:     fields[keyProject],
		Status:        model.Status(fields[keyStatus]),
		Branch:        fields[keyBranch],
		IssueID:       fields[keyIssue],
		WorkspacePath: fields[keyWorktree],
		Metadata:      fields,
	}
	if raw, ok := fields[keyPR]; ok && raw != "" {
		var pr model.PR
		if err := json.Unmarshal([]byte(raw), &pr); err == nil {
			sess.PR = &pr
		}
	}
	if raw, ok := fields[keyRuntimeHandle]; ok && raw != "" {
		var handle model.RuntimeHandle
		if err := json.Unmarshal([]byte(raw), &handle); err == nil {
			sess.RuntimeHandle = handle
		}
	}
	sess.CreatedAt = parseTime(fields[keyCreatedAt])
	sess.LastActivityAt = parseTime(fields[keyLastActivityAt])
	sess.RestoredAt = parseTime(fields[keyRestoredAt])
	return sess
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func marshalPR(pr *model.PR) (string, error) {
	if pr == nil {
		return "", nil
	}
	data, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("session: marshal pr: %w", err)
	}
	return string(data), nil
}

func marshalHandle(h model.RuntimeHandle) (string, error) {
	if h.Empty() {
		return "", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("session: marshal runtime handle: %w", err)
	}
	return string(data), nil
}
