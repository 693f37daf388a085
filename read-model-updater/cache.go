package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/consts"
	"livetodo/internal/contract"
)

type cacheStore interface {
	ListTodos(ctx context.Context) ([]contract.Todo, error)
}

type cacheRefresher interface {
	Refresh(ctx context.Context) ([]contract.Todo, error)
}

type cacheUpdater struct {
	store cacheStore
	redis *redis.Client
	ttl   time.Duration
}

func newCacheUpdater(store cacheStore, redis *redis.Client, ttl time.Duration) *cacheUpdater {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &cacheUpdater{store: store, redis: redis, ttl: ttl}
}

// Refresh reloads the snapshot from table storage and stores it under the
// shared cache key. The snapshot is returned even when caching fails.
func (c *cacheUpdater) Refresh(ctx context.Context) ([]contract.Todo, error) {
	todos, err := c.store.ListTodos(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list todos for cache")
		if c.redis != nil {
			_ = c.redis.Del(ctx, consts.TodosCacheKey).Err()
		}
		return nil, err
	}
	if c.redis == nil {
		return todos, nil
	}
	data, err := json.Marshal(todos)
	if err != nil {
		log.WithError(err).Error("failed to marshal todos cache payload")
		return todos, nil
	}
	if err := c.redis.Set(ctx, consts.TodosCacheKey, data, c.ttl).Err(); err != nil {
		log.WithError(err).Error("failed to store todos cache entry")
	}
	return todos, nil
}
