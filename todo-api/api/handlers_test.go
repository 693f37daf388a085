package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
)

type mockStore struct {
	todos      []contract.Todo
	err        error
	enqueueErr error
	pingErr    error

	mu   sync.Mutex
	cmds []contract.Command
}

func (m *mockStore) FetchTodos(ctx context.Context) ([]contract.Todo, error) {
	return m.todos, m.err
}

func (m *mockStore) EnqueueCommands(ctx context.Context, cmds []contract.Command) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmds...)
	return nil
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) Commands() []contract.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contract.Command, len(m.cmds))
	copy(out, m.cmds)
	return out
}

func newTestSender(t *testing.T, store Storage, deduper Deduper, workers int) *CommandSender {
	t.Helper()
	sender := NewCommandSender(store, deduper, log.New(), SenderConfig{
		Workers:        workers,
		Buffer:         8,
		EnqueueTimeout: time.Second,
	})
	t.Cleanup(sender.Close)
	return sender
}

func newTestDeduper(t *testing.T) *RedisDeduper {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, time.Minute)
}

func postJSON(t *testing.T, handler echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("post: %v", err)
	}
	return rec
}

func decodePostResponse(t *testing.T, rec *httptest.ResponseRecorder) postCommandResponse {
	t.Helper()
	var resp postCommandResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func waitForCommands(t *testing.T, store *mockStore, expected int) []contract.Command {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		cmds := store.Commands()
		if len(cmds) == expected {
			return cmds
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d commands, got %d", expected, len(cmds))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetTodos(t *testing.T) {
	e := echo.New()
	store := &mockStore{todos: []contract.Todo{{ID: "2", Text: "newer", CreationTime: 20}, {ID: "1", Text: "older", CreationTime: 10}}}
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getTodos(store, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp todosResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Todos) != 2 || resp.Todos[0].ID != "2" {
		t.Fatalf("unexpected todos: %#v", resp.Todos)
	}
}

func TestGetTodosEmptyIsArray(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getTodos(&mockStore{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"todos":[]}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestGetTodosStorageError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getTodos(&mockStore{err: errors.New("boom")}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	cases := map[string]struct {
		store *mockStore
		want  int
	}{
		"healthy":   {&mockStore{}, http.StatusOK},
		"unhealthy": {&mockStore{pingErr: errors.New("down")}, http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
			if err := healthz(tc.store)(c); err != nil {
				t.Fatalf("healthz: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestFinalizeCommandsSequentialTimestamps(t *testing.T) {
	cmds := []contract.Command{
		{Type: contract.CreateTodo, Data: sonic.NoCopyRawMessage(`{"text":"buy milk"}`)},
		{IdempotencyKey: "known", Type: contract.MarkTodo, Data: sonic.NoCopyRawMessage(`{"id":"a","completed":true}`)},
	}
	keys, ids, err := finalizeCommands(cmds)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if keys[0] == "" || keys[1] != "known" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if ids[0] != contract.TodoIDForKey(keys[0]) || ids[1] != "a" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if cmds[1].Timestamp-cmds[0].Timestamp != 1 {
		t.Fatalf("expected timestamps to increment by 1, got %d and %d", cmds[0].Timestamp, cmds[1].Timestamp)
	}
	if cmds[0].ID != keys[0] || cmds[1].ID != "known" {
		t.Fatalf("expected command ids to carry idempotency keys")
	}
}

func TestPostCommandsEnqueuesCommandsAndReturnsKeys(t *testing.T) {
	store := &mockStore{}
	sender := newTestSender(t, store, nil, 1)

	body := `[{"type":"create-todo","data":{"text":"buy milk"}},{"idempotencyKey":"known","type":"update-todo","data":{"id":"a","text":"buy almond milk"}}]`
	rec := postJSON(t, postCommands(sender), body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodePostResponse(t, rec)
	if len(resp.IdempotencyKeys) != 2 || len(resp.IDs) != 2 {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.IdempotencyKeys[0] == "" {
		t.Fatalf("expected generated key for first command")
	}
	if resp.IdempotencyKeys[1] != "known" {
		t.Fatalf("expected to echo provided key, got %q", resp.IdempotencyKeys[1])
	}
	if resp.IDs[0] == "" || resp.IDs[1] != "a" {
		t.Fatalf("unexpected ids: %v", resp.IDs)
	}

	cmds := waitForCommands(t, store, 2)
	if cmds[0].ID != resp.IdempotencyKeys[0] {
		t.Fatalf("expected first command ID %q, got %q", resp.IdempotencyKeys[0], cmds[0].ID)
	}
	var created contract.CreateTodoData
	if err := sonic.Unmarshal(cmds[0].Data, &created); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if created.ID != resp.IDs[0] || created.Text != "buy milk" {
		t.Fatalf("unexpected create payload: %#v", created)
	}
	if cmds[1].Timestamp <= cmds[0].Timestamp {
		t.Fatalf("expected increasing timestamps")
	}
}

func TestPostCommandsInlineFallbackSuccess(t *testing.T) {
	store := &mockStore{}
	sender := newTestSender(t, store, nil, 0)

	rec := postJSON(t, postCommands(sender), `[{"type":"delete-todo","data":{"id":"a"}}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d", rec.Code)
	}
	resp := decodePostResponse(t, rec)
	cmds := store.Commands()
	if len(cmds) != 1 {
		t.Fatalf("expected inline enqueue to run immediately, got %d commands", len(cmds))
	}
	if cmds[0].ID != resp.IdempotencyKeys[0] {
		t.Fatalf("expected command ID %q, got %q", resp.IdempotencyKeys[0], cmds[0].ID)
	}
}

func TestPostCommandsInlineFailureRollsBackDedupe(t *testing.T) {
	store := &mockStore{enqueueErr: errors.New("enqueue failed")}
	deduper := newTestDeduper(t)
	sender := newTestSender(t, store, deduper, 0)

	body := `[{"idempotencyKey":"retry-me","type":"delete-todo","data":{"id":"a"}}]`
	rec := postJSON(t, postCommands(sender), body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}

	claimed, err := deduper.Claim(context.Background(), "retry-me")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed[0] {
		t.Fatalf("expected key to be released after failed enqueue")
	}
}

func TestPostCommandsDropsDuplicates(t *testing.T) {
	store := &mockStore{}
	sender := newTestSender(t, store, newTestDeduper(t), 0)

	body := `[{"idempotencyKey":"k1","type":"create-todo","data":{"text":"buy milk"}}]`
	first := decodePostResponse(t, postJSON(t, postCommands(sender), body))
	retry := postJSON(t, postCommands(sender), body)
	if retry.Code != http.StatusAccepted {
		t.Fatalf("expected retry to be accepted, got %d", retry.Code)
	}
	second := decodePostResponse(t, retry)

	if len(store.Commands()) != 1 {
		t.Fatalf("expected exactly one create to be enqueued, got %d", len(store.Commands()))
	}
	if first.IDs[0] != second.IDs[0] {
		t.Fatalf("expected retry to report the same record id, got %q and %q", first.IDs[0], second.IDs[0])
	}
}

func TestPostCommandsRejectsInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"unknown field":  `[{"type":"delete-todo","data":{"id":"a"},"extra":1}]`,
		"empty":          `[]`,
		"unknown type":   `[{"type":"rename-todo","data":{"id":"a"}}]`,
		"missing id":     `[{"type":"update-todo","data":{"text":"x"}}]`,
		"missing fields": `[{"type":"mark-todo","data":{"id":"a"}}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := &mockStore{}
			sender := newTestSender(t, store, nil, 0)
			rec := postJSON(t, postCommands(sender), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if len(store.Commands()) != 0 {
				t.Fatalf("expected nothing enqueued")
			}
		})
	}
}

func TestPostCommandsBodyLimit(t *testing.T) {
	store := &mockStore{}
	sender := newTestSender(t, store, nil, 0)

	body := `[{"type":"create-todo","data":{"text":"` + strings.Repeat("x", postCommandMaxSize) + `"}}]`
	rec := postJSON(t, postCommands(sender), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized body to be rejected, got %d", rec.Code)
	}
}

func TestRegisterRoutes(t *testing.T) {
	e := echo.New()
	store := &mockStore{todos: []contract.Todo{{ID: "a"}}}
	sender := Register(e, store, nil, log.New(), SenderConfig{})
	t.Cleanup(sender.Close)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/todos, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(`[{"type":"mark-todo","data":{"id":"a","completed":true}}]`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from /api/commands, got %d", rec.Code)
	}
	if len(store.Commands()) != 1 {
		t.Fatalf("expected command to be enqueued inline")
	}
}
