package board

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	KindMoveRejected = "move_rejected"
	KindFetchFailed  = "fetch_failed"
)

// Notification is a transient, dismissible message for the user.
type Notification struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Project  string    `json:"project"`
	TicketID string    `json:"ticketId,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

func newNotification(kind, project, ticketID, msg string) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Kind:     kind,
		Project:  project,
		TicketID: ticketID,
		Message:  msg,
		At:       time.Now().UTC(),
	}
}

// Notifier receives user-facing notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"id":      n.ID,
		"kind":    n.Kind,
		"project": n.Project,
		"ticket":  n.TicketID,
	}).Warn(n.Message)
}
