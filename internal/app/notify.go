package app

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appName = "recallcheck"

// Notifier shows a short out-of-band message, such as a desktop
// notification when a run has been scored.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier sends system notifications through beeep.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier returns a notifier that does nothing unless enabled.
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Notify implements Notifier. Failures are logged and returned; callers
// usually ignore them.
func (n *DesktopNotifier) Notify(title, message string) error {
	if !n.enabled {
		return nil
	}
	if len(message) > 100 {
		message = message[:100] + "..."
	}
	if err := beeep.Notify(appName+": "+title, message, ""); err != nil {
		slog.Debug("desktop notification failed", "err", err)
		return err
	}
	return nil
}
