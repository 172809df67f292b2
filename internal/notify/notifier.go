package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Notifier delivers a best-effort message to a user. Delivery is
// at-most-once and failures must never roll back the operation that
// triggered the notification; real-time push transport lives outside this
// service.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, message string) error
}

// LogNotifier writes notifications to the process log. It stands in for
// the external push dispatcher in development and tests.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, userID uuid.UUID, message string) error {
	log.Printf("[NOTIFY] user=%s %s", userID, message)
	return nil
}
