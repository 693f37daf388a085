package scenarios

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"livetodo/internal/contract"
	"livetodo/tests/integration/internal/httpclient"
	"livetodo/todo-cli/client"
)

type testConfig struct {
	APIBase         string `yaml:"api_base"`
	StreamBase      string `yaml:"stream_base"`
	ProjectionSLAMs int    `yaml:"projection_visibility_sla_ms"`
	DebounceMs      int    `yaml:"debounce_ms"`
}

func loadConfig(t *testing.T) testConfig {
	t.Helper()
	cfg := testConfig{
		APIBase:         "http://localhost:8080",
		StreamBase:      "http://localhost:9000",
		ProjectionSLAMs: 10000,
		DebounceMs:      500,
	}
	if data, err := os.ReadFile("../config.test.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			t.Fatalf("parse config.test.yaml: %v", err)
		}
	}
	if v := os.Getenv("API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("STREAM_BASE"); v != "" {
		cfg.StreamBase = v
	}
	return cfg
}

func (c testConfig) sla() time.Duration {
	return time.Duration(c.ProjectionSLAMs) * time.Millisecond
}

func (c testConfig) debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

type stack struct {
	cfg   testConfig
	todos *client.Client
	raw   *httpclient.Client
}

// newStack skips the test unless todo-api answers its health check.
func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := loadConfig(t)
	resp, err := http.Get(cfg.APIBase + "/healthz")
	if err != nil {
		t.Skipf("skipping, API not reachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("skipping, API unhealthy: %d", resp.StatusCode)
	}
	return &stack{
		cfg:   cfg,
		todos: client.New(cfg.APIBase, cfg.StreamBase),
		raw:   httpclient.New(cfg.APIBase),
	}
}

// pollTodos reads the list until cond holds or the projection SLA passes.
func (s *stack) pollTodos(t *testing.T, cond func([]contract.Todo) bool) []contract.Todo {
	t.Helper()
	deadline := time.Now().Add(s.cfg.sla())
	backoff := 100 * time.Millisecond
	for {
		todos, err := s.todos.GetAllTodos(context.Background())
		if err == nil && cond(todos) {
			return todos
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for todos (last error %v)", err)
		}
		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func find(todos []contract.Todo, id string) (contract.Todo, int) {
	var found contract.Todo
	n := 0
	for _, t := range todos {
		if t.ID == id {
			found = t
			n++
		}
	}
	return found, n
}

func hasTodo(id string, match func(contract.Todo) bool) func([]contract.Todo) bool {
	return func(todos []contract.Todo) bool {
		t, n := find(todos, id)
		return n == 1 && (match == nil || match(t))
	}
}

func absent(id string) func([]contract.Todo) bool {
	return func(todos []contract.Todo) bool {
		_, n := find(todos, id)
		return n == 0
	}
}
