package domain

import (
	"context"
	"strconv"

	"livetodo/internal/tables"
)

type fakeStore struct {
	todos     map[string]tables.TodoEntity
	versions  map[string]int
	updates   []TodoUpdate
	conflicts int // UpdateTodo calls to reject with ErrConcurrencyConflict
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{todos: map[string]tables.TodoEntity{}, versions: map[string]int{}}
}

func (f *fakeStore) etag(id string) string { return strconv.Itoa(f.versions[id]) }

func (f *fakeStore) GetTodo(ctx context.Context, id string) (*tables.TodoEntity, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	ent, ok := f.todos[id]
	if !ok {
		return nil, nil
	}
	ent.ETag = f.etag(id)
	return &ent, nil
}

func (f *fakeStore) InsertTodo(ctx context.Context, ent tables.TodoEntity) error {
	if _, exists := f.todos[ent.RowKey]; exists {
		return ErrAlreadyExists
	}
	f.todos[ent.RowKey] = ent
	f.versions[ent.RowKey]++
	return nil
}

func (f *fakeStore) UpdateTodo(ctx context.Context, upd TodoUpdate, etag string) error {
	if f.conflicts > 0 {
		f.conflicts--
		f.versions[upd.RowKey]++
		return ErrConcurrencyConflict
	}
	if etag != f.etag(upd.RowKey) {
		return ErrConcurrencyConflict
	}
	ent := f.todos[upd.RowKey]
	if upd.Text != nil {
		ent.Text = *upd.Text
		ent.TextTimestamp = *upd.TextTimestamp
	}
	if upd.Completed != nil {
		ent.Completed = *upd.Completed
		ent.CompletedTimestamp = *upd.CompletedTimestamp
	}
	f.todos[upd.RowKey] = ent
	f.versions[upd.RowKey]++
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeStore) DeleteTodo(ctx context.Context, id string) (bool, error) {
	if _, ok := f.todos[id]; !ok {
		return false, nil
	}
	delete(f.todos, id)
	delete(f.versions, id)
	return true, nil
}
