// Package notify delivers desktop notifications for watch alerts.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// Notifier sends a user-visible alert.
type Notifier interface {
	Notify(title, body string) error
}

// Desktop sends notifications through the OS notification service.
type Desktop struct{}

func (Desktop) Notify(title, body string) error {
	if err := beeep.Notify(title, body, ""); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}

// Noop discards notifications. Used when notifications are disabled.
type Noop struct{}

func (Noop) Notify(title, body string) error { return nil }

// ForConfig picks the notifier matching the enabled flag.
func ForConfig(enabled bool) Notifier {
	if enabled {
		return Desktop{}
	}
	return Noop{}
}
