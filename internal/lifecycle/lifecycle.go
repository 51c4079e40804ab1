// Package lifecycle implements the polling loop that advances every
// supervised session through the status transition graph: runtime/agent
// liveness, the verifier and reviewer gates, PR state, and the
// reaction/escalation pipeline that keeps a human in the loop when an agent
// cannot make progress on its own.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/metrics"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/obslog"
	"github.com/ao-project/ao/internal/plugin"
	"github.com/ao-project/ao/internal/session"
)

// Manager polls every session across every configured project and advances
// its status, firing reactions and notifications on the transitions it
// observes.
type Manager struct {
	sessions *session.Manager
	reg      *plugin.Registry
	metrics  map[string]*metrics.Log // projectID -> transition log
	logbook  *logbook.Logbook
	obs      *obslog.Logger
	interval time.Duration

	mu             sync.Mutex
	tracked        map[string]model.Status
	trackedProject map[string]string
	completeFired  map[string]bool // projectID -> summary.all_complete already emitted

	sweeping sync.Mutex
}

// NewManager builds a lifecycle manager. metricsLogs may be nil or missing
// an entry for a project; transition recording degrades to a no-op then.
func NewManager(sessions *session.Manager, reg *plugin.Registry, metricsLogs map[string]*metrics.Log, lb *logbook.Logbook, obs *obslog.Logger, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{
		sessions:       sessions,
		reg:            reg,
		metrics:        metricsLogs,
		logbook:        lb,
		obs:            obs,
		interval:       interval,
		tracked:        make(map[string]model.Status),
		trackedProject: make(map[string]string),
		completeFired:  make(map[string]bool),
	}
}

// Run performs one immediate sweep, then sweeps every interval until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.sweepOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one sweep, skipping it entirely if the previous sweep has
// not yet finished — the polling loop's re-entrancy guard.
func (m *Manager) sweepOnce(ctx context.Context) {
	if !m.sweeping.TryLock() {
		return
	}
	defer m.sweeping.Unlock()
	m.sweep(ctx)
}

func (m *Manager) sweep(ctx context.Context) {
	sessions, err := m.sessions.List(ctx, "")
	if err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.sweep.list", "error": err.Error()})
		return
	}

	seen := make(map[string]struct{}, len(sessions))
	var wg sync.WaitGroup
	for _, sess := range sessions {
		seen[sess.ID] = struct{}{}

		m.mu.Lock()
		lastTracked, known := m.tracked[sess.ID]
		m.mu.Unlock()
		if sess.Status.Terminal() && known && lastTracked == sess.Status {
			continue
		}

		wg.Add(1)
		go func(s *model.Session) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.obs.Error(obslog.Fields{"op": "lifecycle.sweep.panic", "session": s.ID, "error": fmt.Sprintf("%v", r)})
				}
			}()
			m.evaluate(ctx, s)
		}(sess)
	}
	wg.Wait()

	m.mu.Lock()
	for id := range m.tracked {
		if _, ok := seen[id]; !ok {
			delete(m.tracked, id)
			delete(m.trackedProject, id)
		}
	}
	terminalByProject := make(map[string]bool)
	for id, st := range m.tracked {
		pid := m.trackedProject[id]
		done, seenProject := terminalByProject[pid]
		terminalByProject[pid] = (!seenProject || done) && st.Terminal()
	}
	var newlyComplete []string
	for pid, allTerminal := range terminalByProject {
		if allTerminal && !m.completeFired[pid] {
			m.completeFired[pid] = true
			newlyComplete = append(newlyComplete, pid)
		} else if !allTerminal && m.completeFired[pid] {
			// A new session was spawned into a project that had already
			// gone quiet; allow the one-shot event to fire again.
			m.completeFired[pid] = false
		}
	}
	m.mu.Unlock()

	for _, pid := range newlyComplete {
		m.emitAllComplete(ctx, pid)
	}
}

// emitAllComplete implements the one-shot "summary.all_complete" reaction
// spec.md calls for once every supervised session in a project has reached
// a terminal status.
func (m *Manager) emitAllComplete(ctx context.Context, projectID string) {
	m.logbook.Info("project %s: all tracked sessions are terminal", projectID)
	project, err := m.sessions.Project(projectID)
	if err != nil {
		return
	}
	event := model.Event{
		ID:        uuid.NewString(),
		Type:      "summary.all_complete",
		ProjectID: projectID,
		Priority:  model.PriorityInfo,
		At:        time.Now().UTC(),
		Detail:    "all supervised sessions for this project are terminal",
	}
	m.notifyHuman(ctx, project, event)
}

// evaluate resolves one session's next status and, if it changed, persists
// it, records the transition, and dispatches the corresponding reaction.
func (m *Manager) evaluate(ctx context.Context, sess *model.Session) {
	project, err := m.sessions.SessionProject(sess.ID)
	if err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.evaluate.project", "session": sess.ID, "error": err.Error()})
		return
	}

	from := sess.Status
	to := m.determineStatus(ctx, sess, project)

	m.mu.Lock()
	m.tracked[sess.ID] = to
	m.trackedProject[sess.ID] = project.ID
	m.mu.Unlock()

	if to != from {
		if err := m.persistStatus(sess.ID, to); err != nil {
			m.obs.Warn(obslog.Fields{"op": "lifecycle.evaluate.persist", "session": sess.ID, "error": err.Error()})
		}
		m.recordTransition(project.ID, sess.ID, from, to)
		m.logbook.Info("%s: %s -> %s", sess.ID, from, to)
		sess.Status = to
		m.dispatchTransition(ctx, sess, project, from, to)
	}

	m.retryPendingSendToAgent(ctx, sess, project, to)
}

func (m *Manager) recordTransition(projectID, sessionID string, from, to model.Status) {
	log, ok := m.metrics[projectID]
	if !ok || log == nil {
		return
	}
	if err := log.RecordTransition(metrics.Transition{
		At:        time.Now().UTC(),
		SessionID: sessionID,
		ProjectID: projectID,
		From:      from,
		To:        to,
	}); err != nil {
		m.obs.Warn(obslog.Fields{"op": "lifecycle.metrics", "session": sessionID, "error": err.Error()})
	}
}
