// Package client talks to the todo services: commands go to todo-api and the
// live list comes from stream-service.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
)

var ErrRejected = errors.New("command rejected")

type Client struct {
	apiURL    string
	streamURL string
	http      *http.Client
	stream    *http.Client
	logger    log.FieldLogger
	newKey    func() string

	onDisconnect func(error)

	minBackoff time.Duration
	maxBackoff time.Duration

	maxFrameSize int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackoff sets the reconnect delay range of Subscribe.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithOnDisconnect registers a hook called each time the stream drops.
func WithOnDisconnect(f func(error)) Option {
	return func(c *Client) { c.onDisconnect = f }
}

// WithMaxFrameSize bounds a single stream line.
func WithMaxFrameSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

func WithKeyFunc(f func() string) Option {
	return func(c *Client) { c.newKey = f }
}

func New(apiURL, streamURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		streamURL:  strings.TrimRight(streamURL, "/"),
		http:       &http.Client{Timeout: 10 * time.Second},
		stream:     &http.Client{},
		logger:     log.StandardLogger(),
		newKey:     uuid.NewString,
		minBackoff: time.Second,
		maxBackoff: 5 * time.Second,

		maxFrameSize: defaultMaxFrameSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type todosResponse struct {
	Todos []contract.Todo `json:"todos"`
}

type commandResponse struct {
	IdempotencyKeys []string `json:"idempotencyKeys"`
	IDs             []string `json:"ids"`
	Error           string   `json:"error"`
}

// GetAllTodos reads the current list once.
func (c *Client) GetAllTodos(ctx context.Context) ([]contract.Todo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/api/todos", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get todos: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get todos: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get todos: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out todosResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	if out.Todos == nil {
		out.Todos = []contract.Todo{}
	}
	return out.Todos, nil
}

// CreateTodo creates a record and returns its id.
func (c *Client) CreateTodo(ctx context.Context, text string) (string, error) {
	key := c.newKey()
	resp, err := c.send(ctx, contract.CreateTodo, key, contract.CommandData{Text: &text})
	if err != nil {
		return "", err
	}
	if len(resp.IDs) > 0 && resp.IDs[0] != "" {
		return resp.IDs[0], nil
	}
	// duplicates are answered without ids; the id only depends on the key
	return contract.TodoIDForKey(key), nil
}

func (c *Client) UpdateTodo(ctx context.Context, id, text string) error {
	_, err := c.send(ctx, contract.UpdateTodo, c.newKey(), contract.CommandData{ID: id, Text: &text})
	return err
}

func (c *Client) MarkTodo(ctx context.Context, id string, completed bool) error {
	_, err := c.send(ctx, contract.MarkTodo, c.newKey(), contract.CommandData{ID: id, Completed: &completed})
	return err
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	_, err := c.send(ctx, contract.DeleteTodo, c.newKey(), contract.CommandData{ID: id})
	return err
}

func (c *Client) send(ctx context.Context, typ, key string, data contract.CommandData) (commandResponse, error) {
	cmd, err := contract.NewCommand(typ, key, data)
	if err != nil {
		return commandResponse{}, err
	}
	payload, err := sonic.Marshal([]contract.Command{cmd})
	if err != nil {
		return commandResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/commands", bytes.NewReader(payload))
	if err != nil {
		return commandResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return commandResponse{}, fmt.Errorf("%s: %w", typ, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	c.logger.WithFields(log.Fields{
		"type":           typ,
		"idempotencyKey": key,
		"status":         resp.StatusCode,
	}).Debug("command sent")

	switch {
	case resp.StatusCode == http.StatusAccepted:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return commandResponse{}, fmt.Errorf("%s: %w: %s", typ, ErrRejected, strings.TrimSpace(string(body)))
	default:
		return commandResponse{}, fmt.Errorf("%s: unexpected status %d", typ, resp.StatusCode)
	}
	var out commandResponse
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &out); err != nil {
			return commandResponse{}, fmt.Errorf("%s: decode response: %w", typ, err)
		}
	}
	return out, nil
}
