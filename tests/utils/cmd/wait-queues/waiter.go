package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type waiter struct {
	count    func(context.Context) (int32, error)
	interval time.Duration
	// stable is how many consecutive empty polls count as drained.
	stable int
	logger log.FieldLogger
}

func (w waiter) wait(ctx context.Context) error {
	need := max(w.stable, 1)
	empty := 0
	for {
		n, err := w.count(ctx)
		if err != nil {
			return fmt.Errorf("queue depth: %w", err)
		}
		if n > 0 {
			w.logger.WithField("pending", n).Info("waiting for queue")
			empty = 0
		} else if empty++; empty >= need {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}
