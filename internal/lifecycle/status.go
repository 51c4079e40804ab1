package lifecycle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ao-project/ao/internal/evidence"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/plugin"
	"github.com/ao-project/ao/internal/session"
)

// Metadata keys this package reads or writes directly, mirroring the
// well-known keys internal/session/record.go uses for the same session
// records (the two packages agree on the wire format, not on Go symbols).
const (
	metaStatus         = "status"
	metaLastActivityAt = "lastActivityAt"
	metaPR             = "pr"
	metaAgent          = "agent"
	metaRuntime        = "runtime"

	metaVerifierSessionID      = "verifierSessionId"
	metaEvidenceFingerprint    = "evidenceFingerprint"
	metaVerifierFailureSentFor = "verifierFailureSentFor"
	metaVerifierPassed         = "verifierPassed"

	metaReviewerCycle         = "reviewerCycle"
	metaReviewerSessionIDs    = "reviewerSessionIds"
	metaReviewerSessionCycle  = "reviewerSessionsCycle"
	metaReviewerFetchFailures = "reviewerFetchFailures"
	metaReviewerFeedbackToken = "reviewerFeedbackToken"
	metaReviewerPassed        = "reviewerPassed"
)

func (m *Manager) persistStatus(sessionID string, status model.Status) error {
	_, err := m.sessions.UpdateMetadata(sessionID, metadata.Fields{
		metaStatus:         string(status),
		metaLastActivityAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	return err
}

// determineStatus implements the fixed-order status derivation: runtime
// liveness, worker completion (via the verifier gate), agent activity, PR
// auto-detect, PR state (via the reviewer gate), and a fallback. Roles
// "verifier" and "reviewer" stop after agent activity — the PR/reviewer
// machinery only applies to worker sessions.
func (m *Manager) determineStatus(ctx context.Context, sess *model.Session, project *session.ProjectRuntime) model.Status {
	current := sess.Status
	role := sess.Role()

	// 1. Runtime liveness.
	if !sess.RuntimeHandle.Empty() {
		if runtimePlugin, err := m.reg.Runtime(sess.Metadata[metaRuntime]); err == nil {
			if alive, err := runtimePlugin.IsAlive(ctx, sess.RuntimeHandle); err == nil && !alive {
				return model.StatusKilled
			}
		}
	}

	// 2. Worker completion / verifier gate.
	if role == "worker" && sess.PR == nil {
		if bundle, err := evidence.Parse(sess.WorkspacePath, sess.ID); err == nil && bundle.Status == evidence.BundleComplete {
			if gated, ok := m.runVerifierGate(ctx, sess, project, bundle.Fingerprint); ok {
				return gated
			}
			if statusIn(current, model.StatusSpawning, model.StatusWorking, model.StatusNeedsInput, model.StatusStuck) {
				return model.StatusDone
			}
		}
	}

	// 3. Agent activity.
	if !sess.RuntimeHandle.Empty() {
		agentPlugin, agentErr := m.reg.Agent(sess.Metadata[metaAgent])
		runtimePlugin, runtimeErr := m.reg.Runtime(sess.Metadata[metaRuntime])
		if agentErr == nil && runtimeErr == nil {
			output, outErr := runtimePlugin.GetOutput(ctx, sess.RuntimeHandle, 200)
			probeFailed := outErr != nil || strings.TrimSpace(output) == ""
			if !probeFailed && agentPlugin.DetectActivity(output) == model.ActivityWaitingInput {
				return model.StatusNeedsInput
			}
			if running, err := agentPlugin.IsProcessRunning(ctx, sess.RuntimeHandle); err == nil && !running {
				return model.StatusKilled
			}
			if probeFailed && (current == model.StatusStuck || current == model.StatusNeedsInput) {
				return current
			}
		}
	}

	if role == "verifier" || role == "reviewer" {
		return current
	}

	// 4. PR auto-detect.
	scmPlugin, scmErr := m.reg.SCM(project.Config.Plugins.SCM)
	if scmErr == nil && sess.PR == nil {
		if pr, err := scmPlugin.DetectPR(ctx, sess, project.Model); err == nil && pr != nil {
			if data, mErr := json.Marshal(pr); mErr == nil {
				_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaPR: string(data)})
			}
			sess.PR = pr
		}
	}

	// 5. PR state.
	if scmErr == nil && sess.PR != nil {
		return m.determinePRStatus(ctx, sess, project, scmPlugin, *sess.PR)
	}

	// 6. Fallback.
	return fallbackStatus(current)
}

func (m *Manager) determinePRStatus(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, scmPlugin plugin.SCM, pr model.PR) model.Status {
	if state, err := scmPlugin.GetPRState(ctx, pr); err == nil {
		switch state {
		case model.PRStateMerged:
			return model.StatusMerged
		case model.PRStateClosed:
			return model.StatusKilled
		}
	}

	if ci, err := scmPlugin.GetCISummary(ctx, pr); err == nil && ci == model.CISummaryFailing {
		return model.StatusCIFailed
	}

	fields, _ := m.sessions.ReadMetadata(sess.ID)
	verifierPassed := fields[metaVerifierPassed] == "true"

	if gated, ok := m.runReviewerGate(ctx, sess, project, pr); ok {
		if gated == model.StatusReviewerPending || gated == model.StatusReviewerFailed {
			return gated
		}
	}
	fields, _ = m.sessions.ReadMetadata(sess.ID)
	reviewerPassed := fields[metaReviewerPassed] == "true"

	decision, decErr := scmPlugin.GetReviewDecision(ctx, pr)
	if decErr != nil {
		return model.StatusPROpen
	}
	switch decision {
	case model.ReviewDecisionChangesRequested:
		return model.StatusChangesRequested
	case model.ReviewDecisionApproved:
		mergeability, mErr := scmPlugin.GetMergeability(ctx, pr)
		if mErr == nil && mergeability.Mergeable && verifierPassed && reviewerPassed {
			return model.StatusMergeable
		}
		return model.StatusApproved
	case model.ReviewDecisionPending:
		return model.StatusReviewPending
	default:
		return model.StatusPROpen
	}
}

func fallbackStatus(current model.Status) model.Status {
	if statusIn(current, model.StatusSpawning, model.StatusStuck, model.StatusNeedsInput) {
		return model.StatusWorking
	}
	return current
}

func statusIn(s model.Status, candidates ...model.Status) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
