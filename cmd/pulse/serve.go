package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborview/pulse/internal/archive"
	"github.com/harborview/pulse/internal/config"
	"github.com/harborview/pulse/internal/events"
	"github.com/harborview/pulse/internal/outbox"
	"github.com/harborview/pulse/internal/publish"
	"github.com/harborview/pulse/internal/realtime"
	"github.com/harborview/pulse/internal/recent"
	"github.com/harborview/pulse/internal/server"
	"github.com/harborview/pulse/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pulse distribution server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create bus publisher.
		var busPublisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			busPublisher = pub
			logger.Info("bus mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			busPublisher = &events.NoopPublisher{}
			logger.Info("bus mirror disabled (PULSE_NATS_URL not set)")
		}

		// Create distribution components.
		recentLog := recent.NewLog(cfg.Retention)
		hub := realtime.NewHub(logger)
		dispatcher := publish.NewDispatcher(recentLog, hub, store, busPublisher, publish.DispatcherConfig{
			Workers:        cfg.PublishWorkers,
			MaxRetries:     cfg.MaxRetries,
			ClockRetention: cfg.Retention,
		}, logger)

		auth := realtime.NewAuthenticator(cfg.StreamSecret)
		streamer := realtime.NewStreamer(hub, recentLog, auth, store, realtime.StreamerConfig{
			ConnectTimeout: cfg.ConnectTimeout,
			ReplayLimit:    cfg.ReplayLimit,
		}, logger)

		// Start the delivery processor.
		routes, err := outbox.LoadRoutes(cfg.RoutesFile)
		if err != nil {
			dispatcher.Stop()
			busPublisher.Close()
			store.Close()
			return err
		}
		processor := outbox.NewProcessor(store, outbox.ProcessorConfig{
			BaseURL:     cfg.DeliveryBaseURL,
			Secret:      cfg.DeliverySecret,
			Routes:      routes,
			Interval:    cfg.DispatchInterval,
			Timeout:     cfg.DispatchTimeout,
			BackoffUnit: cfg.BackoffUnit,
		}, logger)
		processor.Start()
		logger.Info("delivery processor started",
			"base_url", cfg.DeliveryBaseURL, "interval", cfg.DispatchInterval)

		// Start HTTP server.
		pulseServer := server.NewPulseServer(store, dispatcher, streamer, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: pulseServer.NewHTTPHandler(cfg.DeliverySecret),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start archive scheduler if configured.
		var archiver *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			s3Dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Prefix,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewScheduler(store, []archive.Destination{s3Dest},
					cfg.ArchiveInterval, 24*time.Hour, logger)
				archiver.Start()
				logger.Info("archive scheduler started",
					"bucket", cfg.ArchiveS3Bucket, "interval", cfg.ArchiveInterval)
			}
		}

		// Start the automation bridge if NATS is available.
		var bridgeCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create automation subscriber", "err", err)
			} else {
				var bridgeCtx context.Context
				bridgeCtx, bridgeCancel = context.WithCancel(context.Background())
				go func() {
					if err := server.RunAutomationBridge(bridgeCtx, sub, dispatcher, logger); err != nil {
						logger.Error("automation bridge error", "err", err)
					}
					sub.Close()
				}()
				logger.Info("automation bridge started")
			}
		}

		logger.Info("pulse server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown, newest collaborator first.
		if bridgeCancel != nil {
			bridgeCancel()
			logger.Info("automation bridge stopped")
		}

		if archiver != nil {
			archiver.Stop()
			logger.Info("archive scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		processor.Stop()
		logger.Info("delivery processor stopped")

		dispatcher.Stop()
		logger.Info("dispatcher drained")

		if err := busPublisher.Close(); err != nil {
			logger.Error("error closing bus publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
