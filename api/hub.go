package api

import (
	"sync"

	"nexflow/board"
)

const toastBuffer = 8

// subscriber is one open board stream. board is a signal with a buffer of
// one: the stream reads the latest snapshot itself, so missed signals are
// never lost state.
type subscriber struct {
	board  chan struct{}
	toasts chan board.Notification
}

// hub fans engine changes out to the streams watching one board.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe() *subscriber {
	s := &subscriber{
		board:  make(chan struct{}, 1),
		toasts: make(chan board.Notification, toastBuffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) boardChanged(board.Snapshot) {
	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.board <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Notify implements board.Notifier. A stream too slow to drain its toasts
// misses the newest ones.
func (h *hub) Notify(n board.Notification) {
	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.toasts <- n:
		default:
		}
	}
	h.mu.Unlock()
}
