package lifecycle

import (
	"context"
	"fmt"

	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/session"
)

const genericVerifierFailureFeedback = "the verifier session ended without recording a verdict; re-run and check the workspace for details"

// runVerifierGate implements §4.3.1: it spawns a verifier session the first
// time a worker's evidence bundle completes (or whenever the evidence
// fingerprint changes), and interprets that verifier's verdict on
// subsequent ticks. ok is false when the caller should fall through to the
// surrounding "worker completion" logic unchanged.
func (m *Manager) runVerifierGate(ctx context.Context, workerSess *model.Session, project *session.ProjectRuntime, fingerprint string) (model.Status, bool) {
	fields, err := m.sessions.ReadMetadata(workerSess.ID)
	if err != nil || fields == nil {
		return "", false
	}

	verifierID := fields[metaVerifierSessionID]
	storedFingerprint := fields[metaEvidenceFingerprint]

	if verifierID == "" || storedFingerprint != fingerprint {
		return m.spawnVerifier(ctx, workerSess, project, fingerprint)
	}

	verifierSess, err := m.sessions.Get(ctx, verifierID)
	if err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.verifier.get", "session": workerSess.ID, "verifier": verifierID, "error": err.Error()})
		return model.StatusVerifierPending, true
	}
	if verifierSess == nil {
		return m.handleVerifierFailure(ctx, workerSess, verifierID, genericVerifierFailureFeedback)
	}

	switch verifierSess.Metadata["verifierVerdict"] {
	case "passed":
		_, _ = m.sessions.UpdateMetadata(workerSess.ID, metadata.Fields{metaVerifierPassed: "true"})
		_ = m.sessions.Kill(ctx, verifierID)
		return model.StatusPRReady, true
	case "failed":
		return m.handleVerifierFailure(ctx, workerSess, verifierID, verifierSess.Metadata["verifierFeedback"])
	default:
		if verifierSess.Status.Terminal() {
			return m.handleVerifierFailure(ctx, workerSess, verifierID, genericVerifierFailureFeedback)
		}
		return model.StatusVerifierPending, true
	}
}

func (m *Manager) spawnVerifier(ctx context.Context, workerSess *model.Session, project *session.ProjectRuntime, fingerprint string) (model.Status, bool) {
	prompt := fmt.Sprintf(
		"Evidence for session %s is complete (fingerprint %s). Review the changed paths, "+
			"tests run, and known risks under its evidence directory and record a pass/fail verdict.",
		workerSess.ID, fingerprint)

	verifier, err := m.sessions.Spawn(ctx, session.SpawnRequest{
		ProjectID: project.ID,
		Prompt:    prompt,
		Role:      "verifier",
		ExtraMetadata: map[string]string{
			"verifierFor": workerSess.ID,
		},
	})
	if err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.verifier.spawn", "session": workerSess.ID, "error": err.Error()})
		return "", false
	}

	_, _ = m.sessions.UpdateMetadata(workerSess.ID, metadata.Fields{
		metaVerifierSessionID:      verifier.ID,
		metaEvidenceFingerprint:    fingerprint,
		metaVerifierFailureSentFor: "",
	})
	m.logbook.Info("spawned verifier %s for %s", verifier.ID, workerSess.ID)
	return model.StatusVerifierPending, true
}

// handleVerifierFailure sends the verifier's feedback to the worker exactly
// once per verifier session (tracked via verifierFailureSentFor); once that
// has happened, the worker is released back to "working" so it can act on
// the feedback rather than staying pinned at verifier_failed forever.
func (m *Manager) handleVerifierFailure(ctx context.Context, workerSess *model.Session, verifierID, feedback string) (model.Status, bool) {
	fields, _ := m.sessions.ReadMetadata(workerSess.ID)
	if fields != nil && fields[metaVerifierFailureSentFor] == verifierID {
		_ = m.sessions.Kill(ctx, verifierID)
		return model.StatusWorking, true
	}

	if feedback == "" {
		feedback = genericVerifierFailureFeedback
	}
	if err := m.sessions.Send(ctx, workerSess.ID, "Verifier feedback:\n\n"+feedback); err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.verifier.send_feedback", "session": workerSess.ID, "error": err.Error()})
		return model.StatusVerifierFailed, true
	}
	_, _ = m.sessions.UpdateMetadata(workerSess.ID, metadata.Fields{metaVerifierFailureSentFor: verifierID})
	_ = m.sessions.Kill(ctx, verifierID)
	return model.StatusVerifierFailed, true
}
