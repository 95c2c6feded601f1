package domain

import (
	"bytes"
	"time"

	"github.com/bytedance/sonic"
)

// Status is the workflow state stored on a ticket.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusClosed     Status = "Closed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusInReview, StatusClosed:
		return true
	}
	return false
}

// Priority of a ticket.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Assignee is the user a ticket is assigned to.
type Assignee struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UnmarshalJSON accepts the populated user or a bare user id.
func (a *Assignee) UnmarshalJSON(data []byte) error {
	id, isID, err := refID(data)
	if err != nil || isID {
		*a = Assignee{ID: id}
		return err
	}
	type plain Assignee
	var v plain
	if err := sonic.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Assignee(v)
	return nil
}

// DisplayName returns the name, falling back to the email.
func (a *Assignee) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// Ticket represents a single tracked bug or issue as returned by the ticket API.
type Ticket struct {
	ID          string      `json:"_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Priority    Priority    `json:"priority,omitempty"`
	Status      Status      `json:"status"`
	AssignedTo  *Assignee   `json:"assignedTo,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Project     *ProjectRef `json:"project,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ProjectRef is the project a ticket belongs to. The API sends either the
// project id or the populated project document.
type ProjectRef struct {
	ID          string `json:"_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (p *ProjectRef) UnmarshalJSON(data []byte) error {
	id, isID, err := refID(data)
	if err != nil || isID {
		*p = ProjectRef{ID: id}
		return err
	}
	type plain ProjectRef
	var v plain
	if err := sonic.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ProjectRef(v)
	return nil
}

// ProjectID returns the ticket's project id, or "" when it has none.
func (t Ticket) ProjectID() string {
	if t.Project == nil {
		return ""
	}
	return t.Project.ID
}

// refID decodes a reference given as a bare id. isID is false when data is
// an object that the caller must decode itself; null is an empty id.
func refID(data []byte) (id string, isID bool, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", true, nil
	}
	if data[0] != '"' {
		return "", false, nil
	}
	err = sonic.Unmarshal(data, &id)
	return id, true, err
}
