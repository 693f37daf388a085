package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"livetodo/internal/cmdqueue"
	"livetodo/internal/contract"
	"livetodo/internal/tables"
)

// Storage reads the todos table and writes to the command queue. The API
// never writes the table itself; the read-model updater owns it.
type Storage struct {
	todos    *aztables.Client
	commands *azqueue.QueueClient
}

func New(connStr, todosTable, commandQueue string) (*Storage, error) {
	todos, err := tables.NewClient(connStr, todosTable)
	if err != nil {
		return nil, err
	}
	commands, err := cmdqueue.NewClient(connStr, commandQueue)
	if err != nil {
		return nil, err
	}
	return &Storage{todos: todos, commands: commands}, nil
}

// FetchTodos retrieves every todo, newest first.
func (s *Storage) FetchTodos(ctx context.Context) ([]contract.Todo, error) {
	return tables.ListTodos(ctx, s.todos)
}

func (s *Storage) EnqueueCommands(ctx context.Context, cmds []contract.Command) error {
	return cmdqueue.Send(ctx, s.commands, cmds)
}

// Ping checks that the command queue is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := cmdqueue.Depth(ctx, s.commands)
	return err
}
