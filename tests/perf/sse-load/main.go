// Command sse-load holds many stream subscriptions open while a writer
// creates todos, then reports how many snapshots arrived.
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livetodo/internal/config"
	"livetodo/internal/contract"
	"livetodo/todo-cli/client"
)

type counters struct {
	snapshots   atomic.Uint64
	disconnects atomic.Uint64
	writes      atomic.Uint64
	writeErrors atomic.Uint64
}

func main() {
	config.SetupLogging(log.StandardLogger())

	apiURL := config.StringOr("API_URL", "http://localhost:8080")
	streamURL := config.StringOr("STREAM_URL", "http://localhost:9000")
	conns, err := config.Int("SSE_CONNECTIONS", 200)
	if err != nil {
		log.Fatal(err)
	}
	duration, err := config.Duration("LOAD_DURATION", 2*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	writeEvery, err := config.Duration("WRITE_INTERVAL", time.Second)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var c counters
	quiet := log.New()
	quiet.SetLevel(log.ErrorLevel)
	g, ctx := errgroup.WithContext(ctx)
	for range conns {
		cl := client.New(apiURL, streamURL,
			client.WithLogger(quiet),
			client.WithOnDisconnect(func(error) { c.disconnects.Add(1) }),
		)
		g.Go(func() error {
			err := cl.Subscribe(ctx, func([]contract.Todo) { c.snapshots.Add(1) })
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	writer := client.New(apiURL, streamURL, client.WithLogger(quiet))
	g.Go(func() error {
		t := time.NewTicker(writeEvery)
		defer t.Stop()
		for n := 0; ; n++ {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
			id, err := writer.CreateTodo(ctx, fmt.Sprintf("load %d", n))
			if err != nil {
				c.writeErrors.Add(1)
				continue
			}
			c.writes.Add(1)
			_ = writer.DeleteTodo(ctx, id)
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("load run: %v", err)
	}

	snapshots, disconnects := c.snapshots.Load(), c.disconnects.Load()
	log.WithFields(log.Fields{
		"connections":  conns,
		"duration":     duration.String(),
		"snapshots":    snapshots,
		"disconnects":  disconnects,
		"writes":       c.writes.Load(),
		"write_errors": c.writeErrors.Load(),
	}).Info("sse load finished")

	if snapshots == 0 || float64(disconnects) > 0.01*float64(conns) {
		os.Exit(1)
	}
}
