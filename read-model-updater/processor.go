package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/cmdqueue"
	"livetodo/internal/contract"
	"livetodo/read-model-updater/domain"
)

type commandApplier interface {
	Apply(ctx context.Context, cmd contract.Command) (bool, error)
}

// changeNotification is published on the updates channel after every change.
type changeNotification struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Type           string `json:"type"`
	Timestamp      int64  `json:"timestamp"`
}

// decodeCommand parses a queue message. Undecodable messages are reported
// as ErrInvalidCommand so they are removed instead of redelivered.
func decodeCommand(payload string) (contract.Command, error) {
	cmd, err := cmdqueue.Decode(payload)
	if err != nil {
		return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidCommand, err)
	}
	return cmd, nil
}

// processCommand applies cmd and, when the list changed, refreshes the cache
// and publishes a change notification.
func processCommand(ctx context.Context, h commandApplier, cache cacheRefresher, rc *redis.Client, channel string, cmd contract.Command) error {
	changed, err := h.Apply(ctx, cmd)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if cache != nil {
		_, _ = cache.Refresh(ctx)
	}
	payload, err := json.Marshal(changeNotification{IdempotencyKey: cmd.IdempotencyKey, Type: cmd.Type, Timestamp: cmd.Timestamp})
	if err != nil {
		return err
	}
	if err := rc.Publish(ctx, channel, payload).Err(); err != nil {
		log.WithError(err).Errorf("Unable to publish updates for %s to %s", cmd.Type, channel)
	}
	return nil
}

func shouldDelete(err error) bool {
	return err == nil || errors.Is(err, domain.ErrInvalidCommand)
}

type queueStore interface {
	Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

// maxDequeueCount bounds redelivery of a message that keeps failing.
const maxDequeueCount = 5

// handleMessage processes one queue message and deletes it unless the
// failure is transient and the message may still be redelivered.
func handleMessage(ctx context.Context, q queueStore, h commandApplier, cache cacheRefresher, rc *redis.Client, channel string, msg *azqueue.DequeuedMessage) {
	if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return
	}
	text := ""
	if msg.MessageText != nil {
		text = *msg.MessageText
	}
	entry := log.WithField("message", *msg.MessageID)

	cmd, err := decodeCommand(text)
	if err == nil {
		entry = entry.WithFields(log.Fields{"type": cmd.Type, "idempotencyKey": cmd.IdempotencyKey})
		err = processCommand(ctx, h, cache, rc, channel, cmd)
	}

	switch {
	case err == nil:
		entry.Debug("command applied")
	case errors.Is(err, domain.ErrInvalidCommand):
		entry.WithError(err).Error("dropping poison message")
	case msg.DequeueCount != nil && *msg.DequeueCount >= maxDequeueCount:
		entry.WithError(err).WithField("dequeueCount", *msg.DequeueCount).Error("giving up on message after repeated failures")
		err = nil
	default:
		entry.WithError(err).Warn("command failed; leaving message for redelivery")
	}

	if shouldDelete(err) {
		if derr := q.Delete(ctx, *msg.MessageID, *msg.PopReceipt); derr != nil {
			entry.WithError(derr).Error("failed to delete message")
		}
	}
}

// run polls the queue until ctx is cancelled.
func run(ctx context.Context, q queueStore, h commandApplier, cache cacheRefresher, rc *redis.Client, channel string, poll time.Duration) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("receive failed")
			sleep(ctx, poll)
			continue
		}
		if msg == nil {
			sleep(ctx, poll)
			continue
		}
		handleMessage(ctx, q, h, cache, rc, channel, msg)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
