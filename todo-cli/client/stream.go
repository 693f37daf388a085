package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
)

const defaultMaxFrameSize = 4 << 20

// ErrFrameTooLarge is returned by Subscribe when a snapshot does not fit the
// frame limit. Reconnecting would only fetch the same snapshot again.
var ErrFrameTooLarge = errors.New("stream frame too large")

// Subscribe delivers every snapshot pushed by the stream service to fn until
// ctx is done. Lost connections are retried with exponential backoff. fn runs
// on the calling goroutine. It returns nil once ctx is done and
// ErrFrameTooLarge if a snapshot exceeds the frame limit.
func (c *Client) Subscribe(ctx context.Context, fn func([]contract.Todo)) error {
	backoff := c.minBackoff
	for {
		received, err := c.streamOnce(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrFrameTooLarge) {
			c.logger.WithError(err).WithField("maxFrameSize", c.maxFrameSize).Error("stream stopped")
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			return err
		}
		if received {
			backoff = c.minBackoff
		}
		c.logger.WithError(err).WithField("retryIn", backoff).Warn("stream disconnected")
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// streamOnce runs a single connection and reports whether any snapshot arrived.
func (c *Client) streamOnce(ctx context.Context, fn func([]contract.Todo)) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL+"/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream: status %d", resp.StatusCode)
	}
	c.logger.Debug("stream connected")

	received := false
	err = readEvents(resp.Body, c.maxFrameSize, func(data []byte) {
		var todos []contract.Todo
		if err := sonic.Unmarshal(data, &todos); err != nil {
			c.logger.WithError(err).Warn("bad snapshot")
			return
		}
		if todos == nil {
			todos = []contract.Todo{}
		}
		received = true
		fn(todos)
	})
	if err == nil {
		err = io.EOF
	}
	return received, err
}

// readEvents splits an event stream into data payloads. Comment lines are
// heartbeats and are skipped. A line longer than maxSize fails with
// ErrFrameTooLarge.
func readEvents(r io.Reader, maxSize int, fn func([]byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, min(64*1024, maxSize)), maxSize)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				fn([]byte(data.String()))
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			log.WithField("line", line).Debug("ignoring stream field")
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%w: limit %d bytes", ErrFrameTooLarge, maxSize)
		}
		return err
	}
	return nil
}
