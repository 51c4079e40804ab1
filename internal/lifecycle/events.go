package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/reaction"
	"github.com/ao-project/ao/internal/session"
)

// statusEvent maps a target status to the event type and default priority
// it carries; §4.3.3's "for each transition, map the target status to an
// event type". A status absent from eventForStatus is not eventable (no
// reaction, no notification) — typically a session's starting state.
type statusEvent struct {
	eventType string
	priority  model.Priority
}

// Priorities follow §6's inference rule verbatim: stuck|needs_input|errored
// -> urgent; approved|passed|ready|merged|completed -> action;
// fail|changes_requested|conflicts -> warning; summary.* -> info.
var eventForStatus = map[model.Status]statusEvent{
	model.StatusWorking:          {"session.working", model.PriorityInfo},
	model.StatusNeedsInput:       {"session.needs_input", model.PriorityUrgent},
	model.StatusStuck:            {"session.stuck", model.PriorityUrgent},
	model.StatusDone:             {"worker.done", model.PriorityInfo},
	model.StatusVerifierPending:  {"verifier.pending", model.PriorityInfo},
	model.StatusVerifierFailed:   {"verifier.failed", model.PriorityWarning},
	model.StatusPRReady:          {"worker.pr_ready", model.PriorityAction},
	model.StatusPROpen:           {"pr.opened", model.PriorityInfo},
	model.StatusCIFailed:         {"ci.failing", model.PriorityWarning},
	model.StatusReviewPending:    {"review.pending", model.PriorityInfo},
	model.StatusChangesRequested: {"review.changes_requested", model.PriorityWarning},
	model.StatusApproved:         {"review.approved", model.PriorityAction},
	model.StatusReviewerPending:  {"reviewer.pending", model.PriorityInfo},
	model.StatusReviewerFailed:   {"reviewer.failed", model.PriorityWarning},
	model.StatusReviewerPassed:   {"reviewer.passed", model.PriorityAction},
	model.StatusMergeable:        {"merge.ready", model.PriorityAction},
	model.StatusMerged:           {"merge.completed", model.PriorityAction},
	model.StatusErrored:          {"session.errored", model.PriorityUrgent},
	model.StatusKilled:           {"session.killed", model.PriorityWarning},
	model.StatusTerminated:       {"session.terminated", model.PriorityWarning},
}

// reactionKeyForEvent maps an event type to the reaction a project may
// configure for it. Event types absent here have no configurable reaction —
// they can still produce a human notification via their priority.
var reactionKeyForEvent = map[string]string{
	"session.needs_input":      "needs-input",
	"session.stuck":            "stuck",
	"verifier.failed":          "verifier-failed",
	"ci.failing":               "ci-failed",
	"review.changes_requested": "changes-requested",
	"reviewer.failed":          "reviewer-failed",
	"merge.ready":              "merge-ready",
	"session.errored":          "errored",
}

// dispatchTransition implements §4.3.3 for one observed status change.
func (m *Manager) dispatchTransition(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, from, to model.Status) {
	spec, ok := eventForStatus[to]
	if !ok {
		return
	}
	event := model.Event{
		ID:        uuid.NewString(),
		Type:      spec.eventType,
		SessionID: sess.ID,
		ProjectID: project.ID,
		Priority:  spec.priority,
		At:        time.Now().UTC(),
		Detail:    fmt.Sprintf("%s -> %s", from, to),
	}

	reactionKey := reactionKeyForEvent[spec.eventType]
	handled := false
	if reactionKey != "" {
		if cfg, ok := project.Config.Reactions[reactionKey]; ok {
			handled = m.executeReaction(ctx, sess, project, reactionKey, cfg, event)
		}
	}
	if !handled && event.Priority != model.PriorityInfo {
		m.notifyHuman(ctx, project, event)
	}
}

// executeReaction runs a configured reaction and reports whether it counts
// as "handled" for the purpose of suppressing the default human
// notification. send-to-agent with auto enabled counts as handled (including on
// failure — the escalation ladder owns the eventual human notification).
func (m *Manager) executeReaction(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, reactionKey string, cfg config.Reaction, event model.Event) bool {
	switch cfg.Action {
	case "send-to-agent":
		if !cfg.AutoOrDefault() {
			return false
		}
		m.stepSendToAgent(ctx, sess, project, reactionKey, cfg)
		return true
	case "notify":
		m.notifyHuman(ctx, project, event)
		return true
	case "auto-merge":
		if !cfg.AutoOrDefault() {
			return false
		}
		m.runAutoMerge(ctx, sess, project)
		return true
	default:
		return false
	}
}

// retryPendingSendToAgent implements "even without a transition, re-run
// pending send-to-agent retries for the current status": every tick, if the
// current status maps to a configured send-to-agent reaction, advance its
// escalation ladder regardless of whether a transition just occurred (the
// ladder step itself is idempotent on success).
func (m *Manager) retryPendingSendToAgent(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, current model.Status) {
	spec, ok := eventForStatus[current]
	if !ok {
		return
	}
	reactionKey := reactionKeyForEvent[spec.eventType]
	if reactionKey == "" {
		return
	}
	cfg, ok := project.Config.Reactions[reactionKey]
	if !ok || cfg.Action != "send-to-agent" || !cfg.AutoOrDefault() {
		return
	}
	m.stepSendToAgent(ctx, sess, project, reactionKey, cfg)
}

func (m *Manager) runAutoMerge(ctx context.Context, sess *model.Session, project *session.ProjectRuntime) {
	if sess.PR == nil {
		return
	}
	scmPlugin, err := m.reg.SCM(project.Config.Plugins.SCM)
	if err != nil {
		return
	}
	if err := scmPlugin.MergePR(ctx, *sess.PR); err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.auto_merge", "session": sess.ID, "error": err.Error()})
		return
	}
	m.logbook.Info("auto-merged PR for %s", sess.ID)
}

// notifyHuman delivers an event through every notifier listed for its
// priority in the project's notificationRouting. Failures are swallowed
// per §4.3.5.
func (m *Manager) notifyHuman(ctx context.Context, project *session.ProjectRuntime, event model.Event) {
	names := project.Config.NotificationRouting[string(event.Priority)]
	for _, name := range names {
		notifier, err := m.reg.Notifier(name)
		if err != nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			m.obs.Warn(obslog.Fields{"op": "lifecycle.notify", "notifier": name, "session": event.SessionID, "error": err.Error()})
		}
	}
}

// buildReactionMessage composes the structured message a send-to-agent or
// notify reaction delivers, drawing on the PR's CI/comment state and the
// runtime's recent output where available: §4.4.
func (m *Manager) buildReactionMessage(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, reactionKey, message string) string {
	in := reaction.Inputs{ReactionKey: reactionKey, Message: message}

	if sess.PR != nil {
		if scmPlugin, err := m.reg.SCM(project.Config.Plugins.SCM); err == nil {
			if checks, err := scmPlugin.GetCIChecks(ctx, *sess.PR); err == nil {
				in.FailingCI = checks
			}
			if comments, err := scmPlugin.GetPendingComments(ctx, *sess.PR); err == nil {
				in.Comments = comments
			}
		}
	}
	if !sess.RuntimeHandle.Empty() {
		if runtimePlugin, err := m.reg.Runtime(sess.Metadata[metaRuntime]); err == nil {
			if output, err := runtimePlugin.GetOutput(ctx, sess.RuntimeHandle, 80); err == nil {
				in.RecentOutput = output
			}
		}
	}
	return reaction.Build(in)
}
