// Package mirror keeps the local, optimistic view of the todo list.
//
// Local edits are applied immediately. Every server snapshot passed to
// Reconcile makes the server authoritative again: under ResetOnPush an
// unconfirmed local value is dropped even if its mutation is still in flight,
// and only the mutation's own snapshot brings it back. RetainUntilConfirmed
// keeps such values until a snapshot agrees with them.
//
// A Mirror is not safe for concurrent use; it belongs to the UI goroutine.
package mirror

import (
	"fmt"
	"strings"

	"livetodo/internal/contract"
)

type Policy int

const (
	ResetOnPush Policy = iota
	RetainUntilConfirmed
)

func (p Policy) String() string {
	switch p {
	case ResetOnPush:
		return "reset"
	case RetainUntilConfirmed:
		return "retain"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "reset" and "retain".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reset":
		return ResetOnPush, nil
	case "retain":
		return RetainUntilConfirmed, nil
	}
	return ResetOnPush, fmt.Errorf("unknown mirror policy %q", s)
}

// maxUnconfirmedPushes bounds how long a retained value survives snapshots
// that disagree with it, so a write the server dropped does not stick forever.
const maxUnconfirmedPushes = 8

type retained[T comparable] struct {
	value  T
	pushes int
}

// Row is a record with local values applied.
type Row struct {
	contract.Todo
	// Dirty is set when the row shows a value the server has not confirmed.
	Dirty bool
}

type Mirror struct {
	policy Policy

	todos []contract.Todo
	index map[string]int

	editingText         map[string]string
	optimisticCompleted map[string]bool

	retainedText      map[string]retained[string]
	retainedCompleted map[string]retained[bool]
}

func New(policy Policy) *Mirror {
	return &Mirror{
		policy:              policy,
		index:               map[string]int{},
		editingText:         map[string]string{},
		optimisticCompleted: map[string]bool{},
		retainedText:        map[string]retained[string]{},
		retainedCompleted:   map[string]retained[bool]{},
	}
}

func (m *Mirror) Policy() Policy { return m.policy }

// Reconcile rebuilds the mirror from a server snapshot.
func (m *Mirror) Reconcile(snapshot []contract.Todo) {
	m.todos = append(m.todos[:0:0], snapshot...)
	m.index = make(map[string]int, len(snapshot))
	m.editingText = make(map[string]string, len(snapshot))
	m.optimisticCompleted = map[string]bool{}
	for i, t := range snapshot {
		m.index[t.ID] = i
		m.editingText[t.ID] = t.Text
	}
	if m.policy != RetainUntilConfirmed {
		return
	}
	for id, r := range m.retainedText {
		i, ok := m.index[id]
		r.pushes++
		if !ok || snapshot[i].Text == r.value || r.pushes > maxUnconfirmedPushes {
			delete(m.retainedText, id)
			continue
		}
		m.retainedText[id] = r
		m.editingText[id] = r.value
	}
	for id, r := range m.retainedCompleted {
		i, ok := m.index[id]
		r.pushes++
		if !ok || snapshot[i].Completed == r.value || r.pushes > maxUnconfirmedPushes {
			delete(m.retainedCompleted, id)
			continue
		}
		m.retainedCompleted[id] = r
		m.optimisticCompleted[id] = r.value
	}
}

// EditText records in-progress text for id. Unknown ids are ignored.
func (m *Mirror) EditText(id, text string) bool {
	if _, ok := m.index[id]; !ok {
		return false
	}
	m.editingText[id] = text
	if m.policy == RetainUntilConfirmed {
		m.retainedText[id] = retained[string]{value: text}
	}
	return true
}

// SetCompleted records an optimistic completion flag for id.
func (m *Mirror) SetCompleted(id string, completed bool) bool {
	if _, ok := m.index[id]; !ok {
		return false
	}
	m.optimisticCompleted[id] = completed
	if m.policy == RetainUntilConfirmed {
		m.retainedCompleted[id] = retained[bool]{value: completed}
	}
	return true
}

// SettleText reports the outcome of writing sent as the text of id. Under
// RetainUntilConfirmed a failed write gives the field back to the server
// value, unless a newer edit has replaced sent since. Under ResetOnPush
// failures wait for the next snapshot. Successful sends are confirmed by a
// later snapshot, not here.
func (m *Mirror) SettleText(id, sent string, err error) {
	if err == nil || m.policy != RetainUntilConfirmed {
		return
	}
	if r, ok := m.retainedText[id]; !ok || r.value != sent {
		return
	}
	m.dropText(id)
}

// SettleCompleted is SettleText for the completion flag.
func (m *Mirror) SettleCompleted(id string, sent bool, err error) {
	if err == nil || m.policy != RetainUntilConfirmed {
		return
	}
	if r, ok := m.retainedCompleted[id]; !ok || r.value != sent {
		return
	}
	m.dropCompleted(id)
}

// Abandon drops every local value of id.
func (m *Mirror) Abandon(id string) {
	m.dropText(id)
	m.dropCompleted(id)
}

func (m *Mirror) dropText(id string) {
	delete(m.retainedText, id)
	if i, ok := m.index[id]; ok {
		m.editingText[id] = m.todos[i].Text
	}
}

func (m *Mirror) dropCompleted(id string) {
	delete(m.retainedCompleted, id)
	delete(m.optimisticCompleted, id)
}

// Text returns the displayed text of id.
func (m *Mirror) Text(id string) (string, bool) {
	i, ok := m.index[id]
	if !ok {
		return "", false
	}
	if t, ok := m.editingText[id]; ok {
		return t, true
	}
	return m.todos[i].Text, true
}

// Completed returns the displayed completion flag of id.
func (m *Mirror) Completed(id string) (bool, bool) {
	i, ok := m.index[id]
	if !ok {
		return false, false
	}
	if c, ok := m.optimisticCompleted[id]; ok {
		return c, true
	}
	return m.todos[i].Completed, true
}

// Server returns the last snapshot value of id.
func (m *Mirror) Server(id string) (contract.Todo, bool) {
	i, ok := m.index[id]
	if !ok {
		return contract.Todo{}, false
	}
	return m.todos[i], true
}

// Rows returns the snapshot in server order with local values applied.
func (m *Mirror) Rows() []Row {
	rows := make([]Row, len(m.todos))
	for i, t := range m.todos {
		text, _ := m.Text(t.ID)
		completed, _ := m.Completed(t.ID)
		rows[i] = Row{
			Todo:  contract.Todo{ID: t.ID, Text: text, Completed: completed, CreationTime: t.CreationTime},
			Dirty: text != t.Text || completed != t.Completed,
		}
	}
	return rows
}

func (m *Mirror) Len() int { return len(m.todos) }
