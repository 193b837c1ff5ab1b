package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "chargeshare-backend/internal/api/http"
	"chargeshare-backend/internal/app"
	"chargeshare-backend/internal/config"
	"chargeshare-backend/internal/hardware"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/scheduler"
	"chargeshare-backend/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting ChargeShare Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "store", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Kiosk events over MQTT
	if cfg.MQTT.Broker != "" {
		sub := hardware.NewSubscriber(cfg.MQTT, a.Events)
		if err := sub.Start(); err != nil {
			logger.Error("Failed to start MQTT subscriber", "error", err)
			log.Fatalf("Failed to start MQTT subscriber: %v", err)
		}
		defer sub.Stop()
	} else {
		logger.Warn("MQTT broker not configured, kiosk events accepted over HTTP only")
	}

	// The reconciler cannot reach an in-memory store from another process
	if cfg.Database.Driver == "memory" {
		sched := scheduler.NewScheduler(a.JobRunner(cfg), cfg.Scheduler)
		sched.Start()
		defer sched.Stop()
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Rentals:       a.Lifecycle,
		Notifications: a.Notes,
		KioskEvents:   a.Events,
		Tokens:        security.NewTokenManager(cfg.JWT.Secret, 0, 0),
		RateLimiter:   httpapi.NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst),
	})
	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
