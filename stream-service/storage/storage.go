package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"livetodo/internal/contract"
	"livetodo/internal/tables"
)

// Storage provides read access to the todos table.
type Storage struct {
	todoTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, todosTable string) (*Storage, error) {
	tt, err := tables.NewClient(connStr, todosTable)
	if err != nil {
		return nil, err
	}
	return &Storage{todoTable: tt}, nil
}

// FetchTodos returns the current snapshot, newest first.
func (s *Storage) FetchTodos(ctx context.Context) ([]contract.Todo, error) {
	return tables.ListTodos(ctx, s.todoTable)
}
