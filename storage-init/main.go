package main

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"livetodo/internal/cmdqueue"
	"livetodo/internal/config"
	"livetodo/internal/tables"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	config.SetupLogging(log.StandardLogger())
	log.Info("storage init starting")

	env, err := config.Require("STORAGE_CONNECTION_STRING", "TODOS_TABLE", "COMMAND_QUEUE")
	if err != nil {
		log.Fatal(err)
	}
	timeout, err := config.Duration("INIT_TIMEOUT", time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	connStr := env["STORAGE_CONNECTION_STRING"]
	err = withRetry(ctx, time.Second, func() error {
		return createTable(ctx, connStr, env["TODOS_TABLE"])
	})
	if err != nil {
		log.Fatalf("create table: %v", err)
	}
	err = withRetry(ctx, time.Second, func() error {
		return createQueue(ctx, connStr, env["COMMAND_QUEUE"])
	})
	if err != nil {
		log.Fatalf("create queue: %v", err)
	}

	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	c, err := tables.NewClient(connStr, name)
	if err != nil {
		return err
	}
	if _, err := c.CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	log.WithField("table", name).Info("table ready")
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := cmdqueue.NewClient(connStr, name)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, queueAlreadyExists) {
		return err
	}
	log.WithField("queue", name).Info("queue ready")
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

// withRetry calls fn until it succeeds or ctx ends. The storage emulator is
// often still starting when this runs.
func withRetry(ctx context.Context, delay time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("storage not ready")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}
