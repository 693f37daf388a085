package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"livetodo/internal/cmdqueue"
	"livetodo/internal/consts"
	"livetodo/internal/contract"
	"livetodo/internal/tables"
	"livetodo/read-model-updater/domain"
)

// Storage wraps Azure clients used by the service.
type Storage struct {
	queue             *azqueue.QueueClient
	todoTable         *aztables.Client
	visibilityTimeout int32
}

// New creates a Storage from connection parameters. Dequeued messages stay
// invisible for visibilityTimeout before they are redelivered.
func New(connStr, commandQueue, todosTable string, visibilityTimeout time.Duration) (*Storage, error) {
	queue, err := cmdqueue.NewClient(connStr, commandQueue)
	if err != nil {
		return nil, err
	}
	todoClient, err := tables.NewClient(connStr, todosTable)
	if err != nil {
		return nil, err
	}
	return &Storage{queue: queue, todoTable: todoClient, visibilityTimeout: int32(visibilityTimeout / time.Second)}, nil
}

// Dequeue retrieves a single message from the command queue.
func (s *Storage) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	var opts *azqueue.DequeueMessageOptions
	if s.visibilityTimeout > 0 {
		opts = &azqueue.DequeueMessageOptions{VisibilityTimeout: &s.visibilityTimeout}
	}
	resp, err := s.queue.DequeueMessage(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// Delete removes a processed message from the queue.
func (s *Storage) Delete(ctx context.Context, id, receipt string) error {
	_, err := s.queue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// GetTodo retrieves a todo entity if present.
func (s *Storage) GetTodo(ctx context.Context, id string) (*tables.TodoEntity, error) {
	resp, err := s.todoTable.GetEntity(ctx, consts.TodosPartition, id, nil)
	if err != nil {
		if tables.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	ent, err := tables.Decode(resp.Value)
	if err != nil {
		return nil, err
	}
	ent.ETag = string(resp.ETag)
	return &ent, nil
}

// InsertTodo adds a new todo entity.
func (s *Storage) InsertTodo(ctx context.Context, ent tables.TodoEntity) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.todoTable.AddEntity(ctx, payload, nil); err != nil {
		if tables.IsConflict(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateTodo merges changes into an existing todo entity guarded by etag.
func (s *Storage) UpdateTodo(ctx context.Context, upd domain.TodoUpdate, etag string) error {
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	match := azcore.ETagAny
	if etag != "" {
		match = azcore.ETag(etag)
	}
	_, err = s.todoTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &match, UpdateMode: aztables.UpdateModeMerge})
	if tables.IsPreconditionFailed(err) {
		return domain.ErrConcurrencyConflict
	}
	return err
}

// DeleteTodo removes a todo entity, reporting false when it did not exist.
func (s *Storage) DeleteTodo(ctx context.Context, id string) (bool, error) {
	match := azcore.ETagAny
	_, err := s.todoTable.DeleteEntity(ctx, consts.TodosPartition, id, &aztables.DeleteEntityOptions{IfMatch: &match})
	if err != nil {
		if tables.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTodos returns the full snapshot, newest first.
func (s *Storage) ListTodos(ctx context.Context) ([]contract.Todo, error) {
	return tables.ListTodos(ctx, s.todoTable)
}
