package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/consts"
	"livetodo/stream-service/subscription"
)

const heartbeatFrame = ": keep-alive\n\n"

// Config tunes the stream endpoint.
type Config struct {
	CacheTTL  time.Duration
	Heartbeat time.Duration
}

// Register wires up stream endpoints on the given Echo instance.
func Register(e *echo.Echo, store subscription.Storage, rc *redis.Client, hub *Hub, logger *log.Logger, cfg Config) {
	e.GET("/stream", streamTodos(store, rc, hub, logger, cfg))
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("health check failed")
			return c.String(http.StatusServiceUnavailable, "unhealthy")
		}
		return c.String(http.StatusOK, "ok")
	})
}

// snapshot returns the cached snapshot, falling back to storage.
func snapshot(ctx context.Context, store subscription.Storage, rc *redis.Client, ttl time.Duration) ([]byte, error) {
	data, err := rc.Get(ctx, consts.TodosCacheKey).Bytes()
	if err == nil {
		return data, nil
	}
	return subscription.Reload(ctx, rc, store, ttl)
}

func writeFrame(w http.ResponseWriter, f http.Flusher, data []byte) error {
	if _, err := w.Write([]byte(consts.SSEDataPrefix)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	f.Flush()
	return nil
}

func streamTodos(store subscription.Storage, rc *redis.Client, hub *Hub, logger *log.Logger, cfg Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()

		// Subscribe before loading so no change between the two is missed.
		ch := hub.subscribe()
		defer hub.unsubscribe(ch)

		data, err := snapshot(ctx, store, rc, cfg.CacheTTL)
		if err != nil {
			logger.WithError(err).Error("load snapshot")
			return c.String(http.StatusInternalServerError, "unable to load todos")
		}
		w := c.Response()
		if err := writeFrame(w, flusher, data); err != nil {
			return nil
		}
		logger.WithField("clients", hub.Len()).Debug("stream client connected")

		var beat <-chan time.Time
		if cfg.Heartbeat > 0 {
			t := time.NewTicker(cfg.Heartbeat)
			defer t.Stop()
			beat = t.C
		}
		for {
			select {
			case <-ctx.Done():
				logger.Debug("stream client disconnected")
				return nil
			case data := <-ch:
				if err := writeFrame(w, flusher, data); err != nil {
					logger.WithError(err).Debug("write snapshot")
					return nil
				}
			case <-beat:
				if _, err := w.Write([]byte(heartbeatFrame)); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
