package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livetodo/internal/config"
	"livetodo/internal/consts"
	"livetodo/internal/server"
	"livetodo/stream-service/api"
	"livetodo/stream-service/storage"
	"livetodo/stream-service/subscription"
)

func main() {
	logger := log.StandardLogger()
	config.SetupLogging(logger)

	env, err := config.Require("STORAGE_CONNECTION_STRING", "TODOS_TABLE", "REDIS_CONNECTION_STRING")
	if err != nil {
		log.Fatal(err)
	}
	cacheTTL, err := config.Duration("TODOS_CACHE_TTL", 12*time.Hour)
	if err != nil {
		log.Fatal(err)
	}
	heartbeat, err := config.Duration("STREAM_HEARTBEAT", 15*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	channel := config.StringOr("UPDATES_CHANNEL", consts.DefaultUpdatesChannel)

	store, err := storage.New(env["STORAGE_CONNECTION_STRING"], env["TODOS_TABLE"])
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	redisOpts, err := config.RedisOptions(env["REDIS_CONNECTION_STRING"])
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	hub := api.NewHub()
	e := echo.New()
	server.Setup(e, logger, "stream_service", nil)
	api.Register(e, store, rc, hub, logger, api.Config{CacheTTL: cacheTTL, Heartbeat: heartbeat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenAddr := config.ListenAddr(":9000", "STREAM_SERVICE_PORT")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		subscription.SubscribeUpdates(gctx, logger, rc, store, channel, cacheTTL, hub.Broadcast)
		return nil
	})
	g.Go(func() error {
		logger.Infof("stream-service listening on %s", listenAddr)
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			// open streams keep the server busy until they are cut
			logger.WithError(err).Warn("graceful shutdown timed out")
			return e.Close()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("stream-service: %v", err)
	}
}
