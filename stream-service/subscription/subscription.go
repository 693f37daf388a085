package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/consts"
	"livetodo/internal/contract"
)

// Storage loads the full todos snapshot.
type Storage interface {
	FetchTodos(ctx context.Context) ([]contract.Todo, error)
}

type notification struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Type           string `json:"type"`
}

var reconnectDelay = time.Second

// SubscribeUpdates listens for change notifications, reloads the snapshot,
// refreshes the cache and hands the encoded snapshot to broadcast.
// Notifications that pile up while a reload is running collapse into one reload.
func SubscribeUpdates(
	ctx context.Context,
	logger log.FieldLogger,
	rc *redis.Client,
	store Storage,
	updatesChannel string,
	cacheTTL time.Duration,
	broadcast func(data []byte),
) {
	for {
		sub := rc.Subscribe(ctx, updatesChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				logNotification(logger, msg.Payload)
				drain(ch, logger)
				data, err := Reload(ctx, rc, store, cacheTTL)
				if err != nil {
					logger.WithError(err).Error("reload todos")
					continue
				}
				broadcast(data)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Reload reads the snapshot from storage and writes it to the cache. Cache
// failures are logged only; the returned data is still valid.
func Reload(ctx context.Context, rc *redis.Client, store Storage, cacheTTL time.Duration) ([]byte, error) {
	todos, err := store.FetchTodos(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(todos)
	if err != nil {
		return nil, err
	}
	if err := rc.Set(ctx, consts.TodosCacheKey, data, cacheTTL).Err(); err != nil {
		log.WithError(err).Warn("cache todos")
	}
	return data, nil
}

func drain(ch <-chan *redis.Message, logger log.FieldLogger) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			logNotification(logger, msg.Payload)
		default:
			return
		}
	}
}

func logNotification(logger log.FieldLogger, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		logger.WithError(err).Warn("unable to parse update notification")
		return
	}
	logger.WithFields(log.Fields{"type": n.Type, "idempotencyKey": n.IdempotencyKey}).Debug("update received")
}
