package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"livetodo/internal/consts"
	"livetodo/internal/contract"
)

type backend interface {
	FetchTodos(ctx context.Context) ([]contract.Todo, error)
	EnqueueCommands(ctx context.Context, cmds []contract.Command) error
}

// Cache wraps a Storage instance with Redis-backed caching for reads. The
// read model updater keeps the cached snapshot fresh after every change.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTodos(ctx context.Context) ([]contract.Todo, error) {
	if todos, ok := c.loadTodosFromCache(ctx); ok {
		return todos, nil
	}

	todos, err := c.base.FetchTodos(ctx)
	if err != nil {
		return nil, err
	}

	c.storeTodos(ctx, todos)
	return todos, nil
}

func (c *Cache) EnqueueCommands(ctx context.Context, cmds []contract.Command) error {
	return c.base.EnqueueCommands(ctx, cmds)
}

// Ping checks redis and, when supported, the wrapped storage.
func (c *Cache) Ping(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if p, ok := c.base.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Cache) loadTodosFromCache(ctx context.Context) ([]contract.Todo, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, consts.TodosCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, consts.TodosCacheKey).Err()
		}
		return nil, false
	}
	var todos []contract.Todo
	if err := json.Unmarshal(data, &todos); err != nil {
		_ = c.redis.Del(ctx, consts.TodosCacheKey).Err()
		return nil, false
	}
	return todos, true
}

func (c *Cache) storeTodos(ctx context.Context, todos []contract.Todo) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(todos)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, consts.TodosCacheKey, data, c.ttl).Err()
}
