package api

import (
	"context"

	"livetodo/internal/contract"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchTodos(ctx context.Context) ([]contract.Todo, error)
	EnqueueCommands(ctx context.Context, cmds []contract.Command) error
}

// Pinger is implemented by storage able to report its own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deduper drops commands whose idempotency key was already accepted.
type Deduper interface {
	Claim(ctx context.Context, keys ...string) ([]bool, error)
	// Release is called when enqueueing fails, so the client may retry.
	Release(ctx context.Context, keys ...string) error
}
