package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"nexflow/domain"
)

const (
	DefaultPageSize     = 200
	DefaultWriteTimeout = 15 * time.Second
)

// TicketQuery fetches the tickets of a project.
type TicketQuery interface {
	ListTickets(ctx context.Context, project string, limit int) ([]domain.Ticket, error)
}

// TicketUpdater persists a ticket's status. revision increases with every
// local move of the ticket so a server may reject stale writes.
type TicketUpdater interface {
	UpdateStatus(ctx context.Context, ticketID string, status domain.Status, revision uint64) error
}

// LayoutStore persists manual within-column ordering.
type LayoutStore interface {
	LoadLayout(ctx context.Context, project string) (map[domain.Column][]string, error)
	SaveLayout(ctx context.Context, project string, layout map[domain.Column][]string) error
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	PageSize     int
	WriteTimeout time.Duration
	Notifier     Notifier
	Layouts      LayoutStore
	Logger       *log.Logger
	// OnChange receives a snapshot after every state change. It runs on the
	// goroutine that made the change, outside the engine lock.
	OnChange func(Snapshot)
}

// Engine keeps one project's board in memory, applies drags optimistically
// and reconciles them with the ticket API.
type Engine struct {
	project      string
	query        TicketQuery
	updater      TicketUpdater
	pageSize     int
	writeTimeout time.Duration
	notifier     Notifier
	layouts      LayoutStore
	logger       *log.Logger
	onChange     func(Snapshot)

	mu         sync.Mutex
	board      Board
	tickets    map[string]domain.Ticket
	loaded     bool
	loadErr    error
	loadSeq    uint64
	appliedSeq uint64
	generation uint64
	version    uint64
	revisions  map[string]uint64
	closed     bool
	inflight   sync.WaitGroup
}

// New creates an engine for project. The board is empty until Load succeeds.
func New(project string, query TicketQuery, updater TicketUpdater, opts Options) *Engine {
	if query == nil || updater == nil {
		panic("board.New: query and updater are required")
	}
	e := &Engine{
		project:      project,
		query:        query,
		updater:      updater,
		pageSize:     opts.PageSize,
		writeTimeout: opts.WriteTimeout,
		notifier:     opts.Notifier,
		layouts:      opts.Layouts,
		logger:       opts.Logger,
		onChange:     opts.OnChange,
		board:        NewBoard(),
		tickets:      map[string]domain.Ticket{},
		revisions:    map[string]uint64{},
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	if e.writeTimeout <= 0 {
		e.writeTimeout = DefaultWriteTimeout
	}
	if e.logger == nil {
		e.logger = log.StandardLogger()
	}
	if e.notifier == nil {
		e.notifier = LogNotifier{Logger: e.logger}
	}
	return e
}

func (e *Engine) Project() string { return e.project }

// Load fetches the project's tickets and replaces the board wholesale. On
// failure the previous board is kept and a *FetchError is returned. If nothing
// was loaded yet and the query returned a *StaleError, its tickets are shown.
func (e *Engine) Load(ctx context.Context) (err error) {
	ctx, m := startOp(ctx, e.logger, loadSpanName, e.project)
	defer func() { m.End(err) }()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		m.SetErrorStage("closed")
		return ErrClosed
	}
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	tickets, qerr := e.query.ListTickets(ctx, e.project, e.pageSize)
	if qerr != nil {
		m.SetErrorStage("query")
		return e.loadFailed(ctx, m, seq, qerr)
	}

	b, byID := e.prepare(ctx, tickets)
	m.SetInt("tickets", len(byID))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		m.SetErrorStage("closed")
		return ErrClosed
	}
	if seq < e.appliedSeq {
		// A newer load already replaced the board.
		e.mu.Unlock()
		m.SetBool("superseded", true)
		return nil
	}
	e.replaceLocked(seq, b, byID)
	e.loadErr = nil
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	return nil
}

func (e *Engine) loadFailed(ctx context.Context, m *opMetrics, seq uint64, qerr error) error {
	ferr := &FetchError{Project: e.project, Err: qerr}

	var stale *StaleError
	var b Board
	var byID map[string]domain.Ticket
	if errors.As(qerr, &stale) {
		m.SetBool("stale", true)
		b, byID = e.prepare(ctx, stale.Tickets)
	}

	e.mu.Lock()
	if e.closed || seq < e.appliedSeq {
		e.mu.Unlock()
		return ferr
	}
	if !e.loaded && b != nil {
		e.replaceLocked(seq, b, byID)
	}
	e.loadErr = ferr
	e.version++
	outdated := e.loaded
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	if outdated {
		// A board is on screen but may no longer match the server.
		e.notifier.Notify(newNotification(KindFetchFailed, e.project, "",
			fmt.Sprintf("Could not refresh the board: %v", qerr)))
	}
	return ferr
}

// prepare buckets tickets and applies the saved layout. It does IO and must be
// called without the lock held.
func (e *Engine) prepare(ctx context.Context, tickets []domain.Ticket) (Board, map[string]domain.Ticket) {
	b := Bucket(tickets)
	if e.layouts != nil {
		layout, err := e.layouts.LoadLayout(ctx, e.project)
		if err != nil {
			e.logger.WithError(err).WithField("project", e.project).Warn("load board layout failed; using server order")
		} else {
			b.ApplyLayout(layout)
		}
	}
	byID := make(map[string]domain.Ticket, len(tickets))
	for _, t := range tickets {
		if _, dup := byID[t.ID]; !dup {
			byID[t.ID] = t
		}
	}
	return b, byID
}

func (e *Engine) replaceLocked(seq uint64, b Board, byID map[string]domain.Ticket) {
	e.appliedSeq = seq
	e.board = b
	e.tickets = byID
	e.loaded = true
	e.generation++
	e.version++
}

// MoveWithinColumn reorders a ticket inside its current column. It never
// touches the ticket API. from must be the ticket's current index.
func (e *Engine) MoveWithinColumn(ticketID string, from, to int) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	col, idx, ok := e.board.Locate(ticketID)
	if !ok || idx != from {
		e.mu.Unlock()
		e.logger.WithFields(log.Fields{"ticket": ticketID, "from": from, "to": to}).Debug("ignoring stale reorder")
		return ErrInvalidMove
	}
	if from == to {
		e.mu.Unlock()
		return nil
	}
	if !e.board.MoveWithin(col, from, to) {
		e.mu.Unlock()
		return ErrInvalidMove
	}
	e.version++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	return nil
}

type moveRecord struct {
	ticketID   string
	title      string
	from       domain.Column
	to         domain.Column
	index      int
	prevStatus domain.Status
	status     domain.Status
	revision   uint64
	generation uint64
	pending    *PendingMove
}

// MoveAcrossColumns moves a ticket from source to the end of dest at once and
// writes the new status in the background. If the write fails the move is
// undone, unless the board has been reloaded or the ticket moved again since.
func (e *Engine) MoveAcrossColumns(ctx context.Context, ticketID string, source, dest domain.Column) (*PendingMove, error) {
	status, ok := domain.StatusFor(dest)
	if !ok || !source.Valid() {
		return nil, ErrInvalidMove
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	idx := e.board.IndexOf(source, ticketID)
	if idx < 0 {
		e.mu.Unlock()
		e.logger.WithFields(log.Fields{"ticket": ticketID, "source": source, "dest": dest}).Debug("ignoring stale drag")
		return nil, ErrInvalidMove
	}
	if source == dest {
		e.mu.Unlock()
		return resolvedMove(nil), nil
	}

	e.board.Remove(source, idx)
	e.board[dest] = append(e.board[dest], ticketID)
	t := e.tickets[ticketID]
	prevStatus := t.Status
	t.Status = status
	e.tickets[ticketID] = t
	e.revisions[ticketID]++

	mv := moveRecord{
		ticketID:   ticketID,
		title:      t.Title,
		from:       source,
		to:         dest,
		index:      idx,
		prevStatus: prevStatus,
		status:     status,
		revision:   e.revisions[ticketID],
		generation: e.generation,
		pending:    newPendingMove(),
	}
	e.version++
	snap := e.snapshotLocked()
	e.inflight.Add(1)
	e.mu.Unlock()

	e.emit(snap)
	go e.write(context.WithoutCancel(ctx), mv)
	return mv.pending, nil
}

func (e *Engine) write(ctx context.Context, mv moveRecord) {
	defer e.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()
	ctx, m := startOp(ctx, e.logger, moveSpanName, e.project)
	m.SetString("ticket_id", mv.ticketID)
	m.SetString("from", string(mv.from))
	m.SetString("to", string(mv.to))
	m.SetInt("revision", int(mv.revision))

	err := e.updater.UpdateStatus(ctx, mv.ticketID, mv.status, mv.revision)
	if err == nil {
		m.End(nil)
		mv.pending.resolve(nil)
		return
	}

	rej := &MoveRejectedError{TicketID: mv.ticketID, From: mv.from, To: mv.to, Err: err}
	m.SetErrorStage("update")
	rolledBack, closed := e.rollback(mv)
	m.SetBool("rolled_back", rolledBack)
	m.End(rej)

	if !closed {
		name := mv.title
		if name == "" {
			name = mv.ticketID
		}
		e.notifier.Notify(newNotification(KindMoveRejected, e.project, mv.ticketID,
			fmt.Sprintf("Could not move %q to %s: %v", name, mv.to, err)))
	}
	mv.pending.resolve(rej)
}

func (e *Engine) rollback(mv moveRecord) (rolledBack, closed bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, true
	}
	if e.generation != mv.generation || e.revisions[mv.ticketID] != mv.revision {
		e.mu.Unlock()
		return false, false
	}
	if col, i, ok := e.board.Locate(mv.ticketID); ok {
		e.board.Remove(col, i)
	}
	e.board.Insert(mv.from, mv.index, mv.ticketID)
	t := e.tickets[mv.ticketID]
	t.Status = mv.prevStatus
	e.tickets[mv.ticketID] = t
	e.version++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	return true, false
}

// Gesture is a completed drag: the dragged ticket, the container it came from
// (optional) and the container it was dropped over. Over may name a column
// or another ticket.
type Gesture struct {
	TicketID string `json:"ticketId"`
	Source   string `json:"source,omitempty"`
	Over     string `json:"over"`
}

// Drop applies a drag gesture. Dropping over a card in the same column
// reorders; dropping into another column, or onto a card in it, moves.
func (e *Engine) Drop(ctx context.Context, g Gesture) (*PendingMove, error) {
	if g.Over == "" {
		return resolvedMove(nil), nil
	}

	e.mu.Lock()
	src, srcIdx, ok := e.board.Locate(g.TicketID)
	if !ok {
		e.mu.Unlock()
		return nil, ErrInvalidMove
	}
	if g.Source != "" && g.Source != string(src) {
		e.mu.Unlock()
		return nil, ErrInvalidMove
	}
	dest, ok := domain.ParseColumn(g.Over)
	destIdx := -1
	if !ok {
		dest, destIdx, ok = e.board.Locate(g.Over)
		if !ok {
			e.mu.Unlock()
			return nil, ErrInvalidMove
		}
	}
	e.mu.Unlock()

	if dest != src {
		return e.MoveAcrossColumns(ctx, g.TicketID, src, dest)
	}
	if destIdx < 0 {
		return resolvedMove(nil), nil
	}
	if err := e.MoveWithinColumn(g.TicketID, srcIdx, destIdx); err != nil {
		return nil, err
	}
	return resolvedMove(nil), nil
}

// SaveLayout persists the current within-column order if a layout store is configured.
func (e *Engine) SaveLayout(ctx context.Context) error {
	if e.layouts == nil {
		return nil
	}
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil
	}
	layout := map[domain.Column][]string(e.board.Clone())
	e.mu.Unlock()
	return e.layouts.SaveLayout(ctx, e.project, layout)
}

// State returns a copy of the current board.
func (e *Engine) State() Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone()
}

// Snapshot returns the current read model.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close tears the engine down. Writes still in flight are abandoned: they
// finish, but their results are neither applied nor reported.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.generation++
	e.mu.Unlock()
}

// Wait blocks until every in-flight status write has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) emit(s Snapshot) {
	if e.onChange != nil {
		e.onChange(s)
	}
}
