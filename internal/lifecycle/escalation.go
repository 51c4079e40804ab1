package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ao-project/ao/internal/config"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/session"
)

// escalationLevels is the fixed ladder §4.3.4 promotes a reaction through.
var escalationLevels = []string{"worker", "verifier", "orchestrator", "human"}

func nextEscalationLevel(level string) string {
	for i, l := range escalationLevels {
		if l == level {
			if i+1 < len(escalationLevels) {
				return escalationLevels[i+1]
			}
			return level
		}
	}
	return "human"
}

// escalationHistoryEntry records one promotion of the ladder, appended to
// escalationState.History each time promoteEscalation runs.
type escalationHistoryEntry struct {
	From            string    `json:"from"`
	To              string    `json:"to"`
	At              time.Time `json:"at"`
	Reason          string    `json:"reason"`
	AttemptsInLevel int       `json:"attemptsInLevel"`
	TotalAttempts   int       `json:"totalAttempts"`
	ElapsedMs       int64     `json:"elapsedMs"`
}

// escalationState is the per-(session, reactionKey) ladder position,
// persisted inside the worker's own metadata so it survives restarts.
type escalationState struct {
	Level            string                   `json:"level"`
	AttemptsInLevel  int                      `json:"attemptsInLevel"`
	TotalAttempts    int                      `json:"totalAttempts"`
	FirstTriggeredAt time.Time                `json:"firstTriggeredAt"`
	LevelEnteredAt   time.Time                `json:"levelEnteredAt"`
	LastTriggeredAt  time.Time                `json:"lastTriggeredAt"`
	History          []escalationHistoryEntry `json:"history"`
}

func escalationMetaKey(reactionKey string) string {
	return "escalation:" + reactionKey
}

func loadEscalationState(fields metadata.Fields, reactionKey string) escalationState {
	raw, ok := fields[escalationMetaKey(reactionKey)]
	if ok && raw != "" {
		var st escalationState
		if err := json.Unmarshal([]byte(raw), &st); err == nil && st.Level != "" {
			return st
		}
	}
	now := time.Now().UTC()
	return escalationState{Level: escalationLevels[0], FirstTriggeredAt: now, LevelEnteredAt: now}
}

func (m *Manager) saveEscalationState(sessionID, reactionKey string, st escalationState) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	_, _ = m.sessions.UpdateMetadata(sessionID, metadata.Fields{escalationMetaKey(reactionKey): string(data)})
}

func (m *Manager) clearEscalationState(sessionID, reactionKey string) {
	_, _ = m.sessions.UpdateMetadata(sessionID, metadata.Fields{escalationMetaKey(reactionKey): ""})
}

func levelThresholdMs(policy config.EscalationPolicy, level string) int64 {
	switch level {
	case "worker":
		return policy.TimeThresholdsMs.Worker
	case "verifier":
		return policy.TimeThresholdsMs.Verifier
	case "orchestrator":
		return policy.TimeThresholdsMs.Orchestrator
	default:
		return 0
	}
}

func levelRetryCount(policy config.EscalationPolicy, level string) int {
	switch level {
	case "worker":
		return policy.RetryCounts.Worker
	case "verifier":
		return policy.RetryCounts.Verifier
	case "orchestrator":
		return policy.RetryCounts.Orchestrator
	default:
		return 0
	}
}

// stepSendToAgent runs one tick of the escalation ladder for a send-to-agent
// reaction: §4.3.4's state machine, evaluated on every triggering tick
// (fresh transitions and steady-state retries alike).
func (m *Manager) stepSendToAgent(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, reactionKey string, cfg config.Reaction) {
	fields, err := m.sessions.ReadMetadata(sess.ID)
	if err != nil || fields == nil {
		return
	}
	st := loadEscalationState(fields, reactionKey)
	policy := cfg.Escalation

	now := time.Now().UTC()
	if st.FirstTriggeredAt.IsZero() {
		st.FirstTriggeredAt = now
	}
	st.LastTriggeredAt = now
	if threshold := levelThresholdMs(policy, st.Level); threshold > 0 {
		if now.Sub(st.LevelEnteredAt) > time.Duration(threshold)*time.Millisecond {
			m.promoteEscalation(ctx, sess, project, reactionKey, &st, "time_threshold")
		}
	}

	if st.Level == "human" {
		m.saveEscalationState(sess.ID, reactionKey, st)
		return
	}

	message := m.buildReactionMessage(ctx, sess, project, reactionKey, cfg.Message)
	if err := m.sessions.Send(ctx, sess.ID, message); err == nil {
		m.clearEscalationState(sess.ID, reactionKey)
		return
	}

	st.AttemptsInLevel++
	st.TotalAttempts++
	limit := levelRetryCount(policy, st.Level)
	if st.AttemptsInLevel > limit {
		m.promoteEscalation(ctx, sess, project, reactionKey, &st, "retry_count")
	}
	m.saveEscalationState(sess.ID, reactionKey, st)
}

func (m *Manager) promoteEscalation(ctx context.Context, sess *model.Session, project *session.ProjectRuntime, reactionKey string, st *escalationState, reason string) {
	from := st.Level
	now := time.Now().UTC()
	elapsed := now.Sub(st.LevelEnteredAt)
	st.Level = nextEscalationLevel(from)

	st.History = append(st.History, escalationHistoryEntry{
		From:            from,
		To:              st.Level,
		At:              now,
		Reason:          reason,
		AttemptsInLevel: st.AttemptsInLevel,
		TotalAttempts:   st.TotalAttempts,
		ElapsedMs:       elapsed.Milliseconds(),
	})

	st.AttemptsInLevel = 0
	st.LevelEnteredAt = now

	m.logbook.Warn("%s: escalated %q from %s to %s (%s)", sess.ID, reactionKey, from, st.Level, reason)

	event := model.Event{
		ID:        uuid.NewString(),
		Type:      "reaction.escalated",
		SessionID: sess.ID,
		ProjectID: project.ID,
		Priority:  model.PriorityAction,
		At:        now,
		Detail:    reactionKey + ": " + from + " -> " + st.Level + " (" + reason + ")",
	}
	if st.Level == "human" {
		event.Priority = model.PriorityUrgent
		m.notifyHuman(ctx, project, event)
	} else {
		m.obs.Info(obslog.Fields{"op": "lifecycle.escalated", "session": sess.ID, "reaction": reactionKey, "level": st.Level, "reason": reason})
	}
}
