package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/appodealstack/playkit"
	"github.com/appodealstack/playkit/internal/config"
	"github.com/appodealstack/playkit/internal/logging"
	"github.com/appodealstack/playkit/internal/server"
	"github.com/appodealstack/playkit/playstore"
	"github.com/appodealstack/playkit/prommetrics"
	"github.com/appodealstack/playkit/redisstore"
)

var shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the purchase manager against Google Play and serve its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "playkit"})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, logger)
	},
}

func runServe(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	catalog := playkit.DefaultCatalog()
	client, err := playstore.New(playstore.Config{
		PackageName:        cfg.PackageName,
		ServiceAccountJSON: cfg.ServiceAccountJSON,
		Catalog:            catalog,
	}, playstore.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []playkit.Option{
		playkit.WithLogger(logger),
		playkit.WithCatalog(catalog),
		playkit.WithWorkerPool(cfg.Workers, cfg.QueueSize),
		playkit.WithMetrics(prommetrics.New(prometheus.DefaultRegisterer)),
		playkit.WithDeadLetterQueue(playkit.NewInMemoryDeadLetterQueue()),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, playkit.WithStore(redisstore.New(rdb)))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Caching product details in Redis")
	}

	manager, err := playkit.NewManager(ctx, client, opts...)
	if err != nil {
		return err
	}
	defer manager.Shutdown()
	if err := manager.Start(); err != nil {
		return err
	}

	api := server.New(manager, client, logger, server.WithAllowedOrigins(cfg.Origins()...))
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		api.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("playkit stopped")
	return err
}
