// Command wait-queues blocks until the command queue has stayed empty for a
// number of consecutive polls, so integration runs start from a drained
// pipeline.
package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"livetodo/internal/cmdqueue"
	"livetodo/internal/config"
)

func main() {
	config.SetupLogging(log.StandardLogger())

	env, err := config.Require("STORAGE_CONNECTION_STRING", "COMMAND_QUEUE")
	if err != nil {
		log.Fatal(err)
	}
	timeout, err := config.Duration("WAIT_TIMEOUT", 2*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	interval, err := config.Duration("WAIT_INTERVAL", 2*time.Second)
	if err != nil {
		log.Fatal(err)
	}

	q, err := cmdqueue.NewClient(env["STORAGE_CONNECTION_STRING"], env["COMMAND_QUEUE"])
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	w := waiter{
		count:    func(ctx context.Context) (int32, error) { return cmdqueue.Depth(ctx, q) },
		interval: interval,
		stable:   3,
		logger:   log.WithField("queue", env["COMMAND_QUEUE"]),
	}
	if err := w.wait(ctx); err != nil {
		log.Fatalf("queue did not drain: %v", err)
	}
	log.WithField("queue", env["COMMAND_QUEUE"]).Info("queue drained")
}
