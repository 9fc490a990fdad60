package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/weather-live-sync/internal/api/http"
	"github.com/i474232898/weather-live-sync/internal/config"
	"github.com/i474232898/weather-live-sync/internal/db"
	"github.com/i474232898/weather-live-sync/internal/logging"
	"github.com/i474232898/weather-live-sync/internal/registry"
	"github.com/i474232898/weather-live-sync/internal/scheduler"
	"github.com/i474232898/weather-live-sync/internal/store"
	"github.com/i474232898/weather-live-sync/internal/stream"
	"github.com/i474232898/weather-live-sync/internal/weather"
	"github.com/i474232898/weather-live-sync/internal/weather/providers"
)

var version = "dev"

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := logging.New(cfg.Common, version, "weather-backend")
	slog.SetDefault(logg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error("backend stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.BackendConfig, logg *slog.Logger) error {
	conn, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logg.Error("close db", "error", err)
		}
	}()
	if err := registry.Migrate(ctx, conn); err != nil {
		return err
	}
	repo := registry.NewRepository(conn)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var provs []weather.Provider
	switch cfg.Provider {
	case "openweather":
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	default:
		provs = append(provs, providers.NewWttrProvider(httpClient))
	}

	service := weather.NewService(store.NewMemoryStore(cfg.StoreMaxAge), provs, logg)

	sched := scheduler.New(repo, service, cfg.FetchInterval, logg)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	hub := stream.NewHub(16, logg)

	var sinks []stream.Sink
	if cfg.MQTT.Broker != "" {
		pub := stream.NewPublisher(cfg.MQTT, logg)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := pub.Connect(connectCtx)
		cancel()
		if err != nil {
			// paho keeps retrying in the background
			logg.Warn("mqtt publisher not connected yet", "error", err)
		}
		defer pub.Disconnect()
		sinks = append(sinks, pub)
	}

	pusher := stream.NewPusher(repo, service, hub, cfg.PushInterval, logg, sinks...)

	app := fiber.New(fiber.Config{
		AppName:               "weather-backend",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// no WriteTimeout: it would cut the event streams
		ErrorHandler: httpapi.ErrorHandler,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Registry:  repo,
		Readings:  service,
		Hub:       hub,
		Snapshots: pusher,
		Changed:   func() { go pusher.PushOnce(context.Background()) },
		Logger:    logg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pusher.Run(gctx)
	})
	g.Go(func() error {
		logg.Info("listening", "port", cfg.Port, "provider", cfg.Provider)
		if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// closing the hub ends every open event stream
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logg.Error("error during shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}
