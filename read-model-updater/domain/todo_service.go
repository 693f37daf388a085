package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
	"livetodo/internal/tables"
)

// TodoStorage defines methods required for updating the todos read model.
type TodoStorage interface {
	GetTodo(ctx context.Context, id string) (*tables.TodoEntity, error)
	InsertTodo(ctx context.Context, ent tables.TodoEntity) error
	UpdateTodo(ctx context.Context, upd TodoUpdate, etag string) error
	// DeleteTodo reports false when there was nothing to delete.
	DeleteTodo(ctx context.Context, id string) (bool, error)
}

// TodoService applies commands to the todos read model.
type TodoService struct{ st TodoStorage }

func NewTodoService(st TodoStorage) TodoService { return TodoService{st: st} }

// Apply executes cmd against the read model. changed reports whether the
// visible state of the list may differ afterwards. Replayed, stale and
// orphaned commands are dropped without error.
func (s TodoService) Apply(ctx context.Context, cmd contract.Command) (changed bool, err error) {
	switch cmd.Type {
	case contract.CreateTodo:
		var data contract.CreateTodoData
		if err := decode(cmd, &data); err != nil {
			return false, err
		}
		return s.create(ctx, data, cmd.Timestamp)
	case contract.UpdateTodo:
		var data contract.UpdateTodoData
		if err := decode(cmd, &data); err != nil {
			return false, err
		}
		return s.update(ctx, cmd, data.ID, func(ent tables.TodoEntity) (TodoUpdate, bool, bool) {
			if cmd.Timestamp <= ent.TextTimestamp {
				return TodoUpdate{}, false, false
			}
			return textUpdate(ent, data.Text, cmd.Timestamp), ent.Text != data.Text, true
		})
	case contract.MarkTodo:
		var data contract.MarkTodoData
		if err := decode(cmd, &data); err != nil {
			return false, err
		}
		return s.update(ctx, cmd, data.ID, func(ent tables.TodoEntity) (TodoUpdate, bool, bool) {
			if cmd.Timestamp <= ent.CompletedTimestamp {
				return TodoUpdate{}, false, false
			}
			return completedUpdate(ent, data.Completed, cmd.Timestamp), ent.Completed != data.Completed, true
		})
	case contract.DeleteTodo:
		var data contract.DeleteTodoData
		if err := decode(cmd, &data); err != nil {
			return false, err
		}
		deleted, err := s.st.DeleteTodo(ctx, data.ID)
		if err != nil {
			return false, err
		}
		if !deleted {
			log.WithField("todo", data.ID).Debug("delete-todo for missing todo")
		}
		return deleted, nil
	default:
		return false, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
}

func decode(cmd contract.Command, v any) error {
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidCommand, cmd.Type, err)
	}
	return nil
}

func (s TodoService) create(ctx context.Context, data contract.CreateTodoData, ts int64) (bool, error) {
	if data.ID == "" {
		return false, fmt.Errorf("%w: create-todo without id", ErrInvalidCommand)
	}
	creationTime := time.Unix(0, ts).UnixMilli()
	ent := tables.NewTodoEntity(data.ID, data.Text, creationTime, ts)
	if err := s.st.InsertTodo(ctx, ent); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			log.WithFields(log.Fields{"todo": data.ID, "ts": ts}).Info("duplicate create-todo replayed")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// update merges one field using per-field last-writer-wins and retries on
// ETag conflicts. build returns ok=false when the command is stale.
func (s TodoService) update(ctx context.Context, cmd contract.Command, id string, build func(tables.TodoEntity) (upd TodoUpdate, visible, ok bool)) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: %s without id", ErrInvalidCommand, cmd.Type)
	}
	for {
		ent, err := s.st.GetTodo(ctx, id)
		if err != nil {
			return false, err
		}
		if ent == nil {
			log.WithFields(log.Fields{"todo": id, "type": cmd.Type}).Warn("command for missing todo dropped")
			return false, nil
		}
		upd, visible, ok := build(*ent)
		if !ok {
			log.WithFields(log.Fields{"todo": id, "type": cmd.Type, "ts": cmd.Timestamp}).Warn("stale command dropped")
			return false, nil
		}
		if err := s.st.UpdateTodo(ctx, upd, ent.ETag); err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				continue
			}
			return false, err
		}
		return visible, nil
	}
}
