package notifiers

import (
	"context"

	"github.com/ao-project/ao/internal/logbook"
	"github.com/ao-project/ao/internal/model"
)

// LogOnly writes every event into the logbook instead of sending it
// anywhere. It receives only the priorities a project's notificationRouting
// lists it under; a priority with no routing entry is not notified at all.
type LogOnly struct {
	lb *logbook.Logbook
}

// NewLogOnly constructs a logbook-backed notifier.
func NewLogOnly(lb *logbook.Logbook) *LogOnly {
	return &LogOnly{lb: lb}
}

// Notify appends event to the logbook at a level matching its priority.
func (l *LogOnly) Notify(ctx context.Context, event model.Event) error {
	switch event.Priority {
	case model.PriorityUrgent, model.PriorityAction:
		l.lb.Error("[%s] %s session=%s: %s", event.Priority, event.Type, event.SessionID, event.Detail)
	case model.PriorityWarning:
		l.lb.Warn("[%s] %s session=%s: %s", event.Priority, event.Type, event.SessionID, event.Detail)
	default:
		l.lb.Info("[%s] %s session=%s: %s", event.Priority, event.Type, event.SessionID, event.Detail)
	}
	return nil
}
