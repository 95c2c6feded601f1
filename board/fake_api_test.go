package board

import (
	"context"
	"errors"
	"sync"

	"nexflow/domain"
)

type statusWrite struct {
	ID       string
	Status   domain.Status
	Revision uint64
}

// fakeAPI is an in-memory ticket API. Writes fail with failWrites when set;
// when gate is non-nil each write blocks until a value is received from it.
type fakeAPI struct {
	mu         sync.Mutex
	tickets    []domain.Ticket
	queryErr   error
	failWrites error
	gate       chan error
	writes     []statusWrite
	queries    int
	lastLimit  int
}

func (f *fakeAPI) ListTickets(ctx context.Context, project string, limit int) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.lastLimit = limit
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]domain.Ticket, len(f.tickets))
	copy(out, f.tickets)
	return out, nil
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, id string, status domain.Status, revision uint64) error {
	f.mu.Lock()
	f.writes = append(f.writes, statusWrite{ID: id, Status: status, Revision: revision})
	gate := f.gate
	fail := f.failWrites
	f.mu.Unlock()
	if gate != nil {
		select {
		case err := <-gate:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

func (f *fakeAPI) Writes() []statusWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

var errBackend = errors.New("backend unavailable")

type memLayouts struct {
	mu      sync.Mutex
	saved   map[string]map[domain.Column][]string
	loadErr error
}

func (m *memLayouts) LoadLayout(_ context.Context, project string) (map[domain.Column][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.saved[project], nil
}

func (m *memLayouts) SaveLayout(_ context.Context, project string, layout map[domain.Column][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]map[domain.Column][]string{}
	}
	m.saved[project] = layout
	return nil
}
