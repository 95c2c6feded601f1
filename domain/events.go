package domain

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

const (
	TicketCreated  = "bugCreated"
	TicketUpdated  = "bugUpdated"
	TicketDeleted  = "bugDeleted"
	CommentAdded   = "commentAdded"
	CommentUpdated = "commentUpdated"
	CommentDeleted = "commentDeleted"
)

// TicketEvent is a push notification from the real-time channel. Only the
// event name and project are inspected; the payload is kept opaque.
type TicketEvent struct {
	Type    string          `json:"type"`
	Project string          `json:"project,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ChangesBoard reports whether the event can alter the ticket set or statuses.
func (e TicketEvent) ChangesBoard() bool {
	switch e.Type {
	case TicketCreated, TicketUpdated, TicketDeleted:
		return true
	}
	return false
}

// Concerns reports whether the event applies to the given project. Events
// without a project are treated as global.
func (e TicketEvent) Concerns(project string) bool {
	if e.Project != "" {
		return e.Project == project
	}
	if len(e.Data) == 0 {
		return true
	}
	var payload struct {
		Project *ProjectRef `json:"project"`
	}
	if err := sonic.Unmarshal(e.Data, &payload); err != nil || payload.Project == nil {
		return true
	}
	return payload.Project.ID == "" || payload.Project.ID == project
}
