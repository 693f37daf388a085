package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livetodo/internal/config"
	"livetodo/internal/consts"
	"livetodo/read-model-updater/domain"
	"livetodo/read-model-updater/storage"
)

func main() {
	config.SetupLogging(log.StandardLogger())
	log.Info("Read-Model Updater Service starting")

	env, err := config.Require("STORAGE_CONNECTION_STRING", "COMMAND_QUEUE", "TODOS_TABLE", "REDIS_CONNECTION_STRING")
	if err != nil {
		log.Fatal(err)
	}
	visibility, err := config.Duration("VISIBILITY_TIMEOUT", 30*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	poll, err := config.Duration("POLL_INTERVAL", time.Second)
	if err != nil {
		log.Fatal(err)
	}
	cacheTTL, err := config.Duration("TODOS_CACHE_TTL", 12*time.Hour)
	if err != nil {
		log.Fatal(err)
	}
	warmEvery, err := config.Duration("CACHE_REFRESH_INTERVAL", 10*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	channel := config.StringOr("UPDATES_CHANNEL", consts.DefaultUpdatesChannel)

	st, err := storage.New(env["STORAGE_CONNECTION_STRING"], env["COMMAND_QUEUE"], env["TODOS_TABLE"], visibility)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	redisOpts, err := config.RedisOptions(env["REDIS_CONNECTION_STRING"])
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	svc := domain.NewTodoService(st)
	cache := newCacheUpdater(st, rc, cacheTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return run(gctx, st, svc, cache, rc, channel, poll)
	})
	g.Go(func() error {
		// Keeps the cache warm when no commands arrive for longer than its TTL.
		t := time.NewTicker(warmEvery)
		defer t.Stop()
		for {
			_, _ = cache.Refresh(gctx)
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
			}
		}
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("read-model-updater: %v", err)
	}
	log.Info("Read-Model Updater Service stopped")
}
