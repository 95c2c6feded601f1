package board

import (
	"errors"
	"fmt"

	"nexflow/domain"
)

// ErrInvalidMove is returned when a drag refers to a ticket that is not where
// the gesture claims. Callers treat it as a silent no-op.
var ErrInvalidMove = errors.New("invalid move")

// ErrClosed is returned by operations on an engine after Close.
var ErrClosed = errors.New("board engine closed")

// FetchError reports a failed ticket query.
type FetchError struct {
	Project string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch tickets for project %s: %v", e.Project, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MoveRejectedError reports a status write that failed after the optimistic move.
type MoveRejectedError struct {
	TicketID string
	From     domain.Column
	To       domain.Column
	Err      error
}

func (e *MoveRejectedError) Error() string {
	return fmt.Sprintf("move %s from %s to %s rejected: %v", e.TicketID, e.From, e.To, e.Err)
}

func (e *MoveRejectedError) Unwrap() error { return e.Err }

// StaleError is returned by a TicketQuery that could not reach the ticket API
// but still holds the tickets of an earlier successful fetch. An engine with
// nothing loaded yet shows those tickets while reporting Err.
type StaleError struct {
	Tickets []domain.Ticket
	Err     error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("serving %d cached tickets: %v", len(e.Tickets), e.Err)
}

func (e *StaleError) Unwrap() error { return e.Err }
