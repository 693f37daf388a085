package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
)

// Register wires up all API routes on the provided Echo instance and returns
// the command sender backing POST /api/commands.
func Register(e *echo.Echo, store Storage, deduper Deduper, logger *log.Logger, cfg SenderConfig) *CommandSender {
	sender := NewCommandSender(store, deduper, logger, cfg)

	e.GET("/api/todos", getTodos(store, logger))
	e.POST("/api/commands", postCommands(sender))
	e.GET("/healthz", healthz(store))

	return sender
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := store.(Pinger)
		if !ok {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.Logger().Warnf("healthz: %v", err)
			return c.String(http.StatusServiceUnavailable, "unhealthy")
		}
		return c.NoContent(http.StatusOK)
	}
}

func getTodos(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTodoRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		todos, fetchErr := store.FetchTodos(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		if todos == nil {
			todos = []contract.Todo{}
		}
		metrics.SetTodosReturned(len(todos))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, todosResponse{Todos: todos})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// finalizeCommands assigns idempotency keys, record ids and timestamps, and
// validates every command. It returns the key and target id per command.
func finalizeCommands(cmds []contract.Command) (keys, ids []string, err error) {
	keys = make([]string, len(cmds))
	ids = make([]string, len(cmds))
	start := commandClock.reserve(len(cmds))
	for i := range cmds {
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = uuid.NewString()
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		cmds[i].Timestamp = start + int64(i)
		id, nerr := cmds[i].Normalize()
		if nerr != nil {
			return nil, nil, nerr
		}
		keys[i] = cmds[i].IdempotencyKey
		ids[i] = id
	}
	return keys, ids, nil
}

func postCommands(sender *CommandSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]contract.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(cmds) == 0 {
			return c.String(http.StatusBadRequest, "no commands")
		}

		keys, ids, err := finalizeCommands(cmds)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		resp := postCommandResponse{IdempotencyKeys: keys, IDs: ids}

		pending, added := sender.dedupe(c.Request().Context(), cmds)
		if len(pending) == 0 {
			return c.JSON(http.StatusAccepted, resp)
		}

		job := enqueueJob{cmds: pending, added: added}
		if sender.tryEnqueue(job) {
			return c.JSON(http.StatusAccepted, resp)
		}

		sender.log.Warn("enqueue buffer saturated; processing inline")
		if err := sender.enqueue(job); err != nil {
			c.Logger().Errorf("enqueue inline failed: %v", err)
			return c.String(http.StatusInternalServerError, "failed to enqueue commands")
		}

		return c.JSON(http.StatusAccepted, resp)
	}
}
