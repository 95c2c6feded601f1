package board

import (
	"context"

	"nexflow/domain"
)

// ColumnView is one column of a Snapshot.
type ColumnView struct {
	Name    domain.Column   `json:"name"`
	Status  domain.Status   `json:"status"`
	Tickets []domain.Ticket `json:"tickets"`
}

// Snapshot is a read-only view of the board. Version increases with every
// state change so consumers can drop out-of-order snapshots.
type Snapshot struct {
	Project string       `json:"project"`
	Loaded  bool         `json:"loaded"`
	Error   string       `json:"error,omitempty"`
	Version uint64       `json:"version"`
	Columns []ColumnView `json:"columns"`
}

// IDs returns the ticket ids of column c.
func (s Snapshot) IDs(c domain.Column) []string {
	for _, col := range s.Columns {
		if col.Name != c {
			continue
		}
		ids := make([]string, len(col.Tickets))
		for i, t := range col.Tickets {
			ids[i] = t.ID
		}
		return ids
	}
	return nil
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Project: e.project,
		Loaded:  e.loaded,
		Version: e.version,
		Columns: make([]ColumnView, 0, len(domain.Columns)),
	}
	if e.loadErr != nil {
		s.Error = e.loadErr.Error()
	}
	for _, c := range domain.Columns {
		status, _ := domain.StatusFor(c)
		ids := e.board[c]
		view := ColumnView{Name: c, Status: status, Tickets: make([]domain.Ticket, 0, len(ids))}
		for _, id := range ids {
			view.Tickets = append(view.Tickets, e.tickets[id])
		}
		s.Columns = append(s.Columns, view)
	}
	return s
}

// PendingMove tracks the background status write of one move.
type PendingMove struct {
	done chan struct{}
	err  error
}

func newPendingMove() *PendingMove {
	return &PendingMove{done: make(chan struct{})}
}

func resolvedMove(err error) *PendingMove {
	p := newPendingMove()
	p.resolve(err)
	return p
}

func (p *PendingMove) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the write has finished.
func (p *PendingMove) Done() <-chan struct{} { return p.done }

// Err returns the write's outcome, or nil while it is still in flight.
func (p *PendingMove) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the write finishes or ctx is done.
func (p *PendingMove) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
