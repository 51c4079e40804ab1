package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/session"
)

const reviewerVerdictFetchFailureFeedback = "reviewers could not be reached; escalating for human attention"

// runReviewerGate implements §4.3.2: it spawns K reviewer sessions for the
// PR's current review cycle, then, on later ticks, aggregates their
// machine-parseable verdict comments until either enough approvals or a
// rejection resolves the cycle. ok is false when the caller should continue
// with the surrounding PR-state logic (e.g. the gate already passed).
func (m *Manager) runReviewerGate(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, pr model.PR) (model.Status, bool) {
	policy := project.Config.Policies.Reviewer
	fields, err := m.sessions.ReadMetadata(sess.ID)
	if err != nil || fields == nil {
		return "", false
	}
	if fields[metaReviewerPassed] == "true" {
		return model.StatusReviewerPassed, false
	}

	cycle := parsePositiveInt(fields[metaReviewerCycle], 1)
	sessionCycle := parsePositiveInt(fields[metaReviewerSessionCycle], 0)

	if sessionCycle != cycle || strings.TrimSpace(fields[metaReviewerSessionIDs]) == "" {
		return m.spawnReviewers(ctx, sess, project, policy, cycle)
	}

	scmPlugin, err := m.reg.SCM(project.Config.Plugins.SCM)
	if err != nil {
		return model.StatusReviewerPending, true
	}
	comments, err := scmPlugin.ListIssueComments(ctx, pr)
	if err != nil {
		return m.handleReviewerFetchFailure(ctx, sess, project, policy)
	}
	_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaReviewerFetchFailures: ""})

	verdicts := parseReviewerVerdicts(comments, cycle)
	approvals := 0
	rejected := false
	var rejectionComments []model.Comment
	for _, v := range verdicts {
		switch v.verdict {
		case "APPROVE":
			if !policy.RequireEvidence || v.evidence {
				approvals++
			}
		case "REJECT":
			rejected = true
			rejectionComments = append(rejectionComments, model.Comment{Author: v.reviewerID, Body: v.raw})
		}
	}

	if approvals >= maxInt(policy.MinReviewerAgentApprovals, 1) {
		_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaReviewerPassed: "true"})
		m.killReviewers(ctx, strings.Split(fields[metaReviewerSessionIDs], ","))
		return model.StatusReviewerPassed, true
	}

	if rejected {
		return m.handleReviewerRejection(ctx, sess, project, policy, cycle, fields, rejectionComments)
	}

	return model.StatusReviewerPending, true
}

func (m *Manager) spawnReviewers(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, policy config.ReviewerPolicy, cycle int) (model.Status, bool) {
	count := policy.ReviewerCount
	if count < 2 {
		count = 2
	}
	pool := policy.Pool
	var ids []string
	for i := 0; i < count; i++ {
		reviewerID := fmt.Sprintf("reviewer-%d", i+1)
		if i < len(pool) && strings.TrimSpace(pool[i]) != "" {
			reviewerID = pool[i]
		}
		reviewer, err := m.sessions.Spawn(ctx, session.SpawnRequest{
			ProjectID: project.ID,
			Prompt:    fmt.Sprintf("Review the open pull request for session %s as reviewer %s, cycle %d. Post a verdict comment.", sess.ID, reviewerID, cycle),
			Role:      "reviewer",
			ExtraMetadata: map[string]string{
				"reviewFor":     sess.ID,
				"reviewerId":    reviewerID,
				"reviewerCycle": strconv.Itoa(cycle),
			},
		})
		if err != nil {
			m.obs.Warn(obslog.Fields{"op": "lifecycle.reviewer.spawn", "session": sess.ID, "error": err.Error()})
			continue
		}
		ids = append(ids, reviewer.ID)
	}
	if len(ids) == 0 {
		return model.StatusReviewerPending, true
	}
	_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{
		metaReviewerSessionIDs:   strings.Join(ids, ","),
		metaReviewerSessionCycle: strconv.Itoa(cycle),
		metaReviewerCycle:        strconv.Itoa(cycle),
	})
	m.logbook.Info("spawned %d reviewers for %s (cycle %d)", len(ids), sess.ID, cycle)
	return model.StatusReviewerPending, true
}

func (m *Manager) handleReviewerFetchFailure(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, policy config.ReviewerPolicy) (model.Status, bool) {
	fields, _ := m.sessions.ReadMetadata(sess.ID)
	failures := parsePositiveInt(fields[metaReviewerFetchFailures], 0) + 1
	limit := maxInt(2, policy.MaxCycles)
	if failures > limit {
		m.notifyHuman(ctx, project, model.Event{
			Type:      "reviewer.fetch_failed",
			SessionID: sess.ID,
			ProjectID: project.ID,
			Priority:  model.PriorityUrgent,
			Detail:    reviewerVerdictFetchFailureFeedback,
		})
		_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaReviewerFetchFailures: "0"})
		return model.StatusReviewerFailed, true
	}
	_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaReviewerFetchFailures: strconv.Itoa(failures)})
	return model.StatusReviewerPending, true
}

func (m *Manager) handleReviewerRejection(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, policy config.ReviewerPolicy, cycle int, fields metadata.Fields, rejections []model.Comment) (model.Status, bool) {
	feedback := consolidateRejections(rejections)
	token := feedbackToken(cycle, fields[metaEvidenceFingerprint], feedback)

	if fields[metaReviewerFeedbackToken] != token {
		if err := m.sessions.Send(ctx, sess.ID, "Reviewer feedback:\n\n"+feedback); err == nil {
			_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{metaReviewerFeedbackToken: token})
		} else {
			m.obs.Warn(obslog.Fields{"op": "lifecycle.reviewer.send_feedback", "session": sess.ID, "error": err.Error()})
		}
	}

	m.killReviewers(ctx, strings.Split(fields[metaReviewerSessionIDs], ","))

	nextCycle := cycle + 1
	if nextCycle > policy.MaxCycles {
		m.notifyHuman(ctx, project, model.Event{
			Type:      "reviewer.escalated",
			SessionID: sess.ID,
			ProjectID: project.ID,
			Priority:  model.PriorityUrgent,
			Detail:    fmt.Sprintf("reviewer cycle limit (%d) exceeded", policy.MaxCycles),
		})
		return model.StatusReviewerFailed, true
	}

	_, _ = m.sessions.UpdateMetadata(sess.ID, metadata.Fields{
		metaReviewerCycle:      strconv.Itoa(nextCycle),
		metaReviewerSessionIDs: "",
	})
	return model.StatusReviewerFailed, true
}

func (m *Manager) killReviewers(ctx context.Context, ids []string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		_ = m.sessions.Kill(ctx, id)
	}
}

type reviewerVerdict struct {
	reviewerID string
	verdict    string
	evidence   bool
	raw        string
}

// parseReviewerVerdicts extracts the latest AO_REVIEWER_* verdict per
// reviewer for the given cycle from a PR's issue-thread comments, scanning
// oldest-first so a later comment from the same reviewer overrides an
// earlier one.
func parseReviewerVerdicts(comments []model.Comment, cycle int) map[string]reviewerVerdict {
	out := make(map[string]reviewerVerdict)
	for _, c := range comments {
		fields := parseMarkerLines(c.Body)
		if fields["AO_REVIEWER_CYCLE"] != strconv.Itoa(cycle) {
			continue
		}
		reviewerID := fields["AO_REVIEWER_ID"]
		verdict := strings.ToUpper(fields["AO_REVIEWER_VERDICT"])
		if reviewerID == "" || (verdict != "APPROVE" && verdict != "REJECT") {
			continue
		}
		out[reviewerID] = reviewerVerdict{
			reviewerID: reviewerID,
			verdict:    verdict,
			evidence:   strings.TrimSpace(fields["AO_REVIEWER_EVIDENCE"]) != "",
			raw:        c.Body,
		}
	}
	return out
}

func parseMarkerLines(body string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if !strings.HasPrefix(key, "AO_REVIEWER_") {
			continue
		}
		out[key] = strings.TrimSpace(line[idx+1:])
	}
	return out
}

func consolidateRejections(rejections []model.Comment) string {
	var b strings.Builder
	b.WriteString("Reviewers requested changes:\n")
	for _, r := range rejections {
		fmt.Fprintf(&b, "- %s: %s\n", r.Author, r.Body)
	}
	return b.String()
}

func feedbackToken(cycle int, evidenceFingerprint, feedback string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", cycle, evidenceFingerprint, feedback)))
	return hex.EncodeToString(sum[:])
}

func parsePositiveInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
