// README: Entry point; loads config, wires discovery backends, starts the HTTP server and the session janitor.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"travelmate/internal/config"
	httptransport "travelmate/internal/http"
	"travelmate/internal/logging"
	"travelmate/internal/maps"
	"travelmate/internal/modules/discovery"
	"travelmate/internal/modules/ranking"
	"travelmate/internal/observability"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)
	if logging.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("travelmate-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	addresses, err := maps.NewAddressService(cfg.Maps.APIKey, maps.AddressOptions{
		Language: cfg.Maps.Language,
		CacheTTL: cfg.Maps.CacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if cfg.Maps.APIKey == "" {
		logger.Warn("maps api key not set; addresses fall back to provisional text")
	}

	manager := discovery.NewManager(cfg.Discovery.Session(), discovery.Dependencies{
		Location:  b.provider,
		Pool:      b.pool,
		Ranker:    ranking.NewRanker(cfg.Ranking.Weights()),
		Addresser: addresses,
		Logger:    logger,
		Clock:     time.Now,
	}, cfg.Discovery.IdleTTL)
	manager.Subscribe(discovery.LogObserver(logger))
	manager.Subscribe(discovery.MetricsObserver(collector))
	defer manager.Close()

	go manager.RunJanitor(ctx, cfg.Discovery.JanitorInterval)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Discovery: manager,
		Locations: b.locations,
		Positions: b.positions,
		Profiles:  b.profiles,
		Addresses: addresses,
		Metrics:   collector,
		Logger:    logger,
	})
	logger.Info("travelmate-api starting",
		"pool_backend", cfg.Discovery.PoolBackend,
		"location_backend", cfg.Discovery.LocationBackend,
		"fallback_enabled", cfg.Discovery.FallbackEnabled,
	)
	return server.Run(ctx, cfg.HTTP.ShutdownTimeout)
}
