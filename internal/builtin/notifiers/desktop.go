package notifiers

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/ao-project/ao/internal/model"
)

// DesktopConfig configures the desktop notifier.
type DesktopConfig struct {
	AppName string
}

// Desktop raises a native OS notification for each event. On a headless
// orchestrator host (no notification daemon, no display) beeep's call
// fails; that failure is swallowed rather than surfaced, since a missed
// desktop popup must never block a reaction or fail a lifecycle step.
type Desktop struct {
	appName string
}

// NewDesktop constructs a desktop notifier.
func NewDesktop(cfg DesktopConfig) *Desktop {
	appName := cfg.AppName
	if appName == "" {
		appName = "ao"
	}
	return &Desktop{appName: appName}
}

// Notify raises a desktop popup titled after the event type.
func (d *Desktop) Notify(ctx context.Context, event model.Event) error {
	title := fmt.Sprintf("%s: %s", d.appName, event.Type)
	body := event.Detail
	if body == "" {
		body = fmt.Sprintf("session %s", event.SessionID)
	}
	_ = beeep.Notify(title, body, "")
	return nil
}
