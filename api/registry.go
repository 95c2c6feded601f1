package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"nexflow/board"
	"nexflow/client"
	"nexflow/domain"
	"nexflow/storage"
	"nexflow/stream"
)

// Options configures a Registry.
type Options struct {
	TicketAPIURL  string
	HTTP          *http.Client
	PageSize      int
	WriteTimeout  time.Duration
	RefreshSettle time.Duration
	// Redis, when set, keeps a last-known-good copy of every board.
	Redis    *redis.Client
	CacheTTL time.Duration
	// Layouts defaults to an in-process store so card order survives Sweep.
	Layouts board.LayoutStore
	// Announce is called after a status write succeeds so other boardd
	// instances can refresh.
	Announce func(ctx context.Context, ev domain.TicketEvent)
	Logger   *log.Logger
	// Deduper defaults to Redis when configured, else an in-process store.
	Deduper Deduper
}

type boardKey struct {
	user    string
	project string
}

// boardEntry is one live engine with its session and subscribers.
type boardEntry struct {
	key       boardKey
	engine    *board.Engine
	session   *client.Session
	hub       *hub
	refresher *stream.Refresher
	cancel    context.CancelFunc

	loadMu   sync.Mutex
	mu       sync.Mutex
	lastUsed time.Time
}

func (b *boardEntry) touch(now time.Time) {
	b.mu.Lock()
	b.lastUsed = now
	b.mu.Unlock()
}

func (b *boardEntry) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}

// ensureLoaded loads the board until a load succeeds, so a failed first load
// is retried by the next request. Once loaded it returns at once.
func (b *boardEntry) ensureLoaded(ctx context.Context) {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()
	if b.engine.Snapshot().Loaded {
		return
	}
	_ = b.engine.Load(context.WithoutCancel(ctx))
}

// Registry owns one engine per user and project.
type Registry struct {
	opts   Options
	logger *log.Logger
	ctx    context.Context
	stop   context.CancelFunc
	now    func() time.Time

	mu      sync.Mutex
	entries map[boardKey]*boardEntry
	wg      sync.WaitGroup
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Layouts == nil {
		opts.Layouts = storage.NewMemoryLayouts()
	}
	if opts.Deduper == nil {
		if opts.Redis != nil {
			opts.Deduper = NewRedisDeduper(opts.Redis, defaultIdempotencyTTL)
		} else {
			opts.Deduper = newMemoryDeduper(defaultIdempotencyTTL)
		}
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		ctx:     ctx,
		stop:    stop,
		now:     time.Now,
		entries: map[boardKey]*boardEntry{},
	}
}

// acquire returns the board of p for project, creating it on first use. The
// caller's token replaces the one held by the board's session.
func (r *Registry) acquire(p Principal, project string) (*boardEntry, error) {
	key := boardKey{user: p.Subject, project: project}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ctx.Err(); err != nil {
		return nil, board.ErrClosed
	}
	if ent, ok := r.entries[key]; ok {
		ent.session.Set(p.Token)
		ent.touch(r.now())
		return ent, nil
	}

	session := client.NewSession(p.Token)
	tickets := client.New(r.opts.TicketAPIURL, session)
	tickets.HTTP = r.opts.HTTP

	var query board.TicketQuery = tickets
	var updater board.TicketUpdater = tickets
	if r.opts.Redis != nil {
		cache := storage.NewCache(tickets, r.opts.Redis, r.opts.CacheTTL, p.Subject)
		query, updater = cache, cache
	}

	h := newHub()
	logNotifier := board.LogNotifier{Logger: r.logger}
	engine := board.New(project, query, updater, board.Options{
		PageSize:     r.opts.PageSize,
		WriteTimeout: r.opts.WriteTimeout,
		Layouts:      r.opts.Layouts,
		Logger:       r.logger,
		Notifier: board.NotifierFunc(func(n board.Notification) {
			logNotifier.Notify(n)
			h.Notify(n)
		}),
		OnChange: h.boardChanged,
	})

	ctx, cancel := context.WithCancel(r.ctx)
	ent := &boardEntry{
		key:       key,
		engine:    engine,
		session:   session,
		hub:       h,
		refresher: stream.NewRefresher(r.opts.RefreshSettle),
		cancel:    cancel,
		lastUsed:  r.now(),
	}
	r.entries[key] = ent

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ent.refresher.Run(ctx, func(ctx context.Context) {
			_ = engine.Load(ctx)
		})
	}()
	r.logger.WithFields(log.Fields{"user": p.Subject, "project": project}).Debug("board opened")
	return ent, nil
}

// Dispatch schedules a reload of every open board the event concerns.
func (r *Registry) Dispatch(ev domain.TicketEvent) {
	if !ev.ChangesBoard() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ent := range r.entries {
		if ev.Concerns(key.project) {
			ent.refresher.Notify()
		}
	}
}

// track waits for a drop's status write. Success is announced; onReject, when
// set, runs if the write fails.
func (r *Registry) track(project string, p *board.PendingMove, onReject func()) {
	if p == nil || (r.opts.Announce == nil && onReject == nil) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case <-r.ctx.Done():
			return
		case <-p.Done():
		}
		if p.Err() != nil {
			if onReject != nil {
				onReject()
			}
			return
		}
		if r.opts.Announce != nil {
			r.opts.Announce(r.ctx, domain.TicketEvent{Type: domain.TicketUpdated, Project: project})
		}
	}()
}

// Sweep closes boards unused for longer than idle that nobody is watching.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var closed []*boardEntry
	r.mu.Lock()
	for key, ent := range r.entries {
		if ent.hub.count() == 0 && ent.idleSince().Before(cutoff) {
			delete(r.entries, key)
			closed = append(closed, ent)
		}
	}
	r.mu.Unlock()
	for _, ent := range closed {
		r.closeEntry(ent)
	}
	return len(closed)
}

// Len returns the number of open boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down every board and waits for background work to finish.
func (r *Registry) Close() {
	r.stop()
	r.mu.Lock()
	entries := r.entries
	r.entries = map[boardKey]*boardEntry{}
	r.mu.Unlock()
	for _, ent := range entries {
		r.closeEntry(ent)
	}
	r.wg.Wait()
}

func (r *Registry) closeEntry(ent *boardEntry) {
	ent.cancel()
	ent.engine.Close()
	if err := ent.engine.SaveLayout(context.Background()); err != nil {
		r.logger.WithError(err).WithField("project", ent.key.project).Warn("save board layout failed")
	}
	ent.engine.Wait()
	r.logger.WithFields(log.Fields{"user": ent.key.user, "project": ent.key.project}).Debug("board closed")
}
