package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"nexflow/board"
	"nexflow/domain"
)

type backend interface {
	ListTickets(ctx context.Context, project string, limit int) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.Status, revision uint64) error
}

// Cache keeps the last ticket list fetched for each project in Redis. Reads
// always go to the ticket API; the cached copy is only served, wrapped in a
// *board.StaleError, when the API fails.
type Cache struct {
	base      backend
	redis     *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCache wraps base. namespace separates the entries of different users.
func NewCache(base backend, client *redis.Client, ttl time.Duration, namespace string) *Cache {
	if base == nil {
		panic("storage.NewCache: base is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, namespace: namespace}
}

func (c *Cache) ListTickets(ctx context.Context, project string, limit int) ([]domain.Ticket, error) {
	tickets, err := c.base.ListTickets(ctx, project, limit)
	if err != nil {
		if stale, ok := c.FetchStale(ctx, project); ok {
			return nil, &board.StaleError{Tickets: stale, Err: err}
		}
		return nil, err
	}
	c.store(ctx, project, tickets)
	return tickets, nil
}

func (c *Cache) UpdateStatus(ctx context.Context, ticketID string, status domain.Status, revision uint64) error {
	if err := c.base.UpdateStatus(ctx, ticketID, status, revision); err != nil {
		return err
	}
	c.evictTicket(ctx, ticketID)
	return nil
}

// FetchStale returns the cached tickets of project, if any.
func (c *Cache) FetchStale(ctx context.Context, project string) ([]domain.Ticket, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := c.ticketsKey(project)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tickets []domain.Ticket
	if err := sonic.Unmarshal(data, &tickets); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tickets, true
}

func (c *Cache) store(ctx context.Context, project string, tickets []domain.Ticket) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tickets)
	if err != nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, c.ticketsKey(project), data, c.ttl)
	for _, t := range tickets {
		pipe.Set(ctx, c.ownerKey(t.ID), project, c.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// evictTicket drops the cached list holding ticketID. A status write makes
// that list wrong until the next successful fetch.
func (c *Cache) evictTicket(ctx context.Context, ticketID string) {
	if c.redis == nil {
		return
	}
	project, err := c.redis.Get(ctx, c.ownerKey(ticketID)).Result()
	if err != nil {
		return
	}
	_, _ = c.redis.Del(ctx, c.ticketsKey(project)).Result()
}

func (c *Cache) ticketsKey(project string) string {
	return "tickets:" + c.namespace + ":" + project
}

func (c *Cache) ownerKey(ticketID string) string {
	return "ticket-project:" + c.namespace + ":" + ticketID
}
