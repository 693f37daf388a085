package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "livetodo:cmd:"

// RedisDeduper remembers idempotency keys for ttl so a client retry of the
// same command is accepted but not enqueued twice, across all API instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// Claim marks every key as seen in one pipeline. claimed[i] is true when keys[i]
// was not seen before; a key repeated within the batch is claimed once. On
// error claimed still reports what succeeded so the caller can release it.
func (r *RedisDeduper) Claim(ctx context.Context, keys ...string) (claimed []bool, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	claimed = make([]bool, len(keys))
	cmds := make([]*redis.BoolCmd, len(keys))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.SetNX(ctx, dedupeKeyPrefix+k, 1, r.ttl)
		}
		return nil
	})
	for i, cmd := range cmds {
		ok, cerr := cmd.Result()
		if cerr != nil {
			if err == nil {
				err = fmt.Errorf("claim %q: %w", keys[i], cerr)
			}
			continue
		}
		claimed[i] = ok
	}
	return claimed, err
}

// Release forgets keys so a command whose enqueue failed can be retried.
func (r *RedisDeduper) Release(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = dedupeKeyPrefix + k
	}
	return r.client.Del(ctx, full...).Err()
}
