package contract

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Command types accepted by POST /api/commands.
const (
	CreateTodo = "create-todo"
	UpdateTodo = "update-todo"
	MarkTodo   = "mark-todo"
	DeleteTodo = "delete-todo"
)

// todoNamespace seeds ids of created records so a retried create (same
// idempotency key) always targets the same record.
var todoNamespace = uuid.MustParse("5b0f3c1e-2a47-4d8e-9c61-7f1d2e3a4b5c")

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrMissingID      = errors.New("missing todo id")
	ErrMissingField   = errors.New("missing command field")
)

// Command is a write request against the todos read model.
type Command struct {
	// ID carries the idempotency key once the command is enqueued.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// CommandData is the union of every command payload.
type CommandData struct {
	ID        string  `json:"id,omitempty"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// CreateTodoData is the payload of a create-todo command.
type CreateTodoData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// UpdateTodoData is the payload of an update-todo command.
type UpdateTodoData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MarkTodoData is the payload of a mark-todo command.
type MarkTodoData struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
}

// DeleteTodoData is the payload of a delete-todo command.
type DeleteTodoData struct {
	ID string `json:"id"`
}

// NewCommand builds a command of the given type with an encoded payload.
func NewCommand(typ, idempotencyKey string, data any) (Command, error) {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return Command{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Command{IdempotencyKey: idempotencyKey, Type: typ, Data: sonic.NoCopyRawMessage(payload)}, nil
}

// TodoIDForKey derives the id of a record created by the command carrying key.
func TodoIDForKey(key string) string {
	return uuid.NewSHA1(todoNamespace, []byte(key)).String()
}

// Normalize validates the command and rewrites its payload into the canonical
// per-type shape. The idempotency key must already be set. It returns the id of
// the record the command targets; create-todo commands get a derived id.
func (c *Command) Normalize() (string, error) {
	var raw CommandData
	if len(c.Data) > 0 {
		if err := sonic.Unmarshal(c.Data, &raw); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", c.Type, err)
		}
	}

	var data any
	switch c.Type {
	case CreateTodo:
		if raw.Text == nil {
			return "", fmt.Errorf("%s: %w: text", c.Type, ErrMissingField)
		}
		raw.ID = TodoIDForKey(c.IdempotencyKey)
		data = CreateTodoData{ID: raw.ID, Text: *raw.Text}
	case UpdateTodo:
		if raw.ID == "" {
			return "", fmt.Errorf("%s: %w", c.Type, ErrMissingID)
		}
		if raw.Text == nil {
			return "", fmt.Errorf("%s: %w: text", c.Type, ErrMissingField)
		}
		data = UpdateTodoData{ID: raw.ID, Text: *raw.Text}
	case MarkTodo:
		if raw.ID == "" {
			return "", fmt.Errorf("%s: %w", c.Type, ErrMissingID)
		}
		if raw.Completed == nil {
			return "", fmt.Errorf("%s: %w: completed", c.Type, ErrMissingField)
		}
		data = MarkTodoData{ID: raw.ID, Completed: *raw.Completed}
	case DeleteTodo:
		if raw.ID == "" {
			return "", fmt.Errorf("%s: %w", c.Type, ErrMissingID)
		}
		data = DeleteTodoData{ID: raw.ID}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}

	payload, err := sonic.Marshal(data)
	if err != nil {
		return "", err
	}
	c.Data = sonic.NoCopyRawMessage(payload)
	return raw.ID, nil
}
