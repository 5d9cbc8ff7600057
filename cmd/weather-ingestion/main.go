package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-ingestion/internal/analytics"
	httpapi "github.com/i474232898/weather-ingestion/internal/api/http"
	"github.com/i474232898/weather-ingestion/internal/broadcast"
	"github.com/i474232898/weather-ingestion/internal/common"
	"github.com/i474232898/weather-ingestion/internal/config"
	"github.com/i474232898/weather-ingestion/internal/scheduler"
	"github.com/i474232898/weather-ingestion/internal/store"
	"github.com/i474232898/weather-ingestion/internal/weather/providers"
)

// openStore is replaced in tests.
var openStore = store.Open

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := common.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if !cfg.DotEnvLoaded {
		zl.Info("no .env file loaded; using process environment")
	}
	for _, w := range cfg.Warnings {
		zl.Warn("config: " + w)
	}

	if err := run(cfg, zl); err != nil {
		zl.Error("weather-ingestion stopped", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	_ = zl.Sync()
}

// run wires the service and blocks until a signal arrives or the server
// fails. Resources are released by defers, so an early error still closes
// whatever was opened before it.
func run(cfg *config.AppConfig, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls; per-attempt timeouts come from the adapter.
	httpClient := &http.Client{Timeout: cfg.Retry.AttemptTimeout + 5*time.Second}
	restyClient := resty.NewWithClient(httpClient).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "weather-ingestion")

	backend, err := providers.NewBackend(restyClient, cfg.Backend)
	if err != nil {
		return fmt.Errorf("configure %s backend: %w", cfg.Backend.Kind, err)
	}
	source := providers.NewAdapter(backend, cfg.Retry, zl, providers.WithRateLimit(cfg.RateLimit))

	st, err := openStore(ctx, cfg.Store, zl)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	// Defers run last-in first-out: hub, then the Kafka producer, then the store.
	defer func() {
		if err := st.Close(); err != nil {
			zl.Warn("error closing store", zap.Error(err))
		}
	}()

	hub := broadcast.NewHub(st, zl.Named("broadcast"), broadcast.WithHistory(cfg.BroadcastHistory))

	publishers := broadcast.Fanout{hub}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := broadcast.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("connect to kafka %v: %w", cfg.KafkaBrokers, err)
		}
		mirror := broadcast.NewKafkaMirror(producer, cfg.KafkaTopic, zl.Named("kafka"))
		defer func() {
			if err := mirror.Close(); err != nil {
				zl.Warn("error closing kafka producer", zap.Error(err))
			}
		}()
		publishers = append(publishers, mirror)
	}
	defer func() { _ = hub.Close() }()

	// Scheduler that periodically fetches, stores and broadcasts readings.
	sched := scheduler.New(cfg.Cities, cfg.FetchInterval, source, st, zl.Named("scheduler"))
	if err := sched.AttachSink(publishers); err != nil {
		return fmt.Errorf("attach broadcast sink: %w", err)
	}

	engine := analytics.NewEngine(st, zl.Named("analytics"))

	app := fiber.New(fiber.Config{
		AppName:               "weather-ingestion",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     "weather-ingestion",
			"backend":     backend.Name(),
			"scheduler":   sched.State().String(),
			"subscribers": hub.Len(),
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Analytics: engine,
		Readings:  st,
		Hub:       hub,
		Cities:    cfg.Cities,
		Logger:    zl.Named("http"),
	})

	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("http server listening", zap.String("port", cfg.Port))
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown(app, sched, hub, zl)
		return nil
	})
	return g.Wait()
}

// shutdown stops intake before the deferred closes in run release what the
// intake writes to: HTTP first, then the scheduler, then the hub. The Kafka
// producer and the store are closed by run's defers afterwards.
func shutdown(app *fiber.App, sched *scheduler.Scheduler, hub *broadcast.Hub, zl *zap.Logger) {
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Warn("error during http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := hub.Close(); err != nil {
		zl.Warn("error closing broadcast hub", zap.Error(err))
	}
}
