package domain

import "errors"

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrAlreadyExists is returned by InsertTodo when the row is already present.
var ErrAlreadyExists = errors.New("todo already exists")

// ErrInvalidCommand marks commands that can never be applied. Messages
// carrying them are removed from the queue instead of being retried.
var ErrInvalidCommand = errors.New("invalid command")
