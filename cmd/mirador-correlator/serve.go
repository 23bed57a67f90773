package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-correlator/internal/api"
	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/intake"
	"github.com/miradorstack/mirador-correlator/internal/metrics"
	"github.com/miradorstack/mirador-correlator/internal/telemetry"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC API, alert intake and scheduled discovery",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-correlator", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	if cfg.Tracing.Enabled {
		shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Warn("tracing shutdown", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.NewServer(cfg.Server, logger, api.NewHandler(logger, a.correlator, a.discovery))
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var background sync.WaitGroup

	if cfg.Intake.Enabled {
		consumer, err := intake.NewConsumer(intake.Config{
			Addr:         cfg.Intake.Addr,
			Password:     cfg.Intake.Password,
			DB:           cfg.Intake.DB,
			Key:          cfg.Intake.QueueKey,
			Workers:      cfg.Intake.Workers,
			BlockTimeout: cfg.Intake.BlockTimeout,
			DrainTimeout: cfg.Intake.DrainTimeout,
		}, a.correlator, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		background.Add(1)
		go func() {
			defer background.Done()
			logger.Info("alert intake running", slog.String("queue", cfg.Intake.QueueKey), slog.Int("workers", cfg.Intake.Workers))
			_ = consumer.Run(ctx)
		}()
	}

	if a.discovery != nil && cfg.Discovery.Schedule != "" {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := a.discovery.Schedule(ctx, cfg.Discovery.Tenants, cfg.Discovery.Schedule); err != nil {
				logger.Error("discovery schedule", slog.Any("error", err))
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}

	background.Wait()
	logger.Info("mirador-correlator stopped")
	return nil
}
