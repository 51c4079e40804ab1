package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/evidence"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
)

// completeEvidence writes and immediately marks complete all four evidence
// files for a session, so evidence.Parse reports BundleComplete.
func completeEvidence(t *testing.T, workspacePath, sessionID string) {
	t.Helper()
	require.NoError(t, evidence.Init(workspacePath, sessionID))
	for _, kind := range []evidence.Kind{evidence.KindCommandLog, evidence.KindTestsRun, evidence.KindChangedPaths, evidence.KindKnownRisks} {
		p := filepath.Join(evidence.Dir(workspacePath, sessionID), string(kind)+".json")
		body := `{"schemaVersion":"1","complete":true,"entries":[],"tests":[],"paths":[],"risks":[]}`
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestVerifierGateSpawnsOnCompleteEvidence(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	completeEvidence(t, sess.WorkspacePath, sess.ID)

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusVerifierPending, got)

	fields := h.readMeta(sess.ID)
	require.NotEmpty(t, fields[metaVerifierSessionID])
	require.NotEmpty(t, fields[metaEvidenceFingerprint])
}

func TestVerifierGatePassedUnblocksWorker(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	completeEvidence(t, sess.WorkspacePath, sess.ID)

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	_ = h.lifecyc.determineStatus(ctx, sess, project)

	fields := h.readMeta(sess.ID)
	verifierID := fields[metaVerifierSessionID]
	require.NotEmpty(t, verifierID)

	_, err = h.sessions.UpdateMetadata(verifierID, metadata.Fields{"verifierVerdict": "passed"})
	require.NoError(t, err)

	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusPRReady, got)

	fields = h.readMeta(sess.ID)
	require.Equal(t, "true", fields[metaVerifierPassed])
}

func TestVerifierGateFailureSendsFeedbackThenReleasesWorker(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	completeEvidence(t, sess.WorkspacePath, sess.ID)

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	_ = h.lifecyc.determineStatus(ctx, sess, project)

	fields := h.readMeta(sess.ID)
	verifierID := fields[metaVerifierSessionID]
	_, err = h.sessions.UpdateMetadata(verifierID, metadata.Fields{
		"verifierVerdict":  "failed",
		"verifierFeedback": "tests do not cover the edge case",
	})
	require.NoError(t, err)

	got := h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusVerifierFailed, got)
	fields = h.readMeta(sess.ID)
	require.Equal(t, verifierID, fields[metaVerifierFailureSentFor])

	// On the next tick, the same verifier id has already had its feedback
	// sent: the worker is released back to working rather than staying
	// pinned at verifier_failed.
	got = h.lifecyc.determineStatus(ctx, sess, project)
	require.Equal(t, model.StatusWorking, got)
}

func TestVerifierGateRespawnsOnNewFingerprint(t *testing.T) {
	h := newHarness(t, config.Project{})
	ctx := context.Background()
	sess := h.spawnWorker(ctx)
	completeEvidence(t, sess.WorkspacePath, sess.ID)

	project, err := h.sessions.SessionProject(sess.ID)
	require.NoError(t, err)
	_ = h.lifecyc.determineStatus(ctx, sess, project)
	first := h.readMeta(sess.ID)[metaVerifierSessionID]
	require.NotEmpty(t, first)

	// A changed evidence file (new mtime/size) produces a new fingerprint,
	// which must spawn a fresh verifier rather than reuse the stale one.
	completeEvidence(t, sess.WorkspacePath, sess.ID)
	_ = h.lifecyc.determineStatus(ctx, sess, project)
	second := h.readMeta(sess.ID)[metaVerifierSessionID]
	require.NotEmpty(t, second)
}
