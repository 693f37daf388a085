package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"livetodo/internal/config"
	"livetodo/internal/server"
	"livetodo/todo-api/api"
	"livetodo/todo-api/storage"
)

func main() {
	logger := log.New()
	config.SetupLogging(logger)

	env, err := config.Require("STORAGE_CONNECTION_STRING", "TODOS_TABLE", "COMMAND_QUEUE", "REDIS_CONNECTION_STRING")
	if err != nil {
		logger.Fatal(err)
	}
	store, err := storage.New(env["STORAGE_CONNECTION_STRING"], env["TODOS_TABLE"], env["COMMAND_QUEUE"])
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	redisOpts, err := config.RedisOptions(env["REDIS_CONNECTION_STRING"])
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	dedupeTTL, err := config.Duration("DEDUPER_TTL", 24*time.Hour)
	if err != nil {
		logger.Fatal(err)
	}
	cacheTTL, err := config.Duration("TODOS_CACHE_TTL", 12*time.Hour)
	if err != nil {
		logger.Fatal(err)
	}

	shutdownTracing := setupTracing(logger)
	defer shutdownTracing()

	senderCfg, err := api.SenderConfigFromEnv()
	if err != nil {
		logger.Fatal(err)
	}

	e := echo.New()
	server.Setup(e, logger, "todo_api", nil)
	sender := api.Register(e, storage.NewCache(store, rc, cacheTTL), api.NewRedisDeduper(rc, dedupeTTL), logger, senderCfg)

	listenAddr := config.ListenAddr(":8080", "FUNCTIONS_CUSTOMHANDLER_PORT", "TODO_API_PORT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		sender.Close()
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Fatalf("todo-api: %v", err)
	}
}

// setupTracing installs the global tracer provider. Spans are written to
// stdout when OTEL_TRACES_STDOUT is true and dropped otherwise.
func setupTracing(logger *log.Logger) func() {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}
	if on, _ := strconv.ParseBool(os.Getenv("OTEL_TRACES_STDOUT")); on {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			logger.Fatalf("trace exporter: %v", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}
}
