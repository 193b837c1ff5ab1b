package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chargeshare-backend/internal/app"
	"chargeshare-backend/internal/config"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g. 'reconcile', 'integrity')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting ChargeShare Reconciler...", "log_level", cfg.Log.Level)

	if cfg.Database.Driver == "memory" {
		log.Fatalf("The reconciler needs a shared database; the memory store runs its sweeps inside the server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	jobRunner := a.JobRunner(cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		n, err := jobRunner.Run(ctx, *runOnce)
		if err != nil {
			logger.Error("Unknown job name", "job", *runOnce)
			fmt.Printf("Available jobs:\n")
			for _, name := range jobRunner.JobNames() {
				fmt.Printf("  - %s\n", name)
			}
			a.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce, "processed", n)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner, cfg.Scheduler)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Reconciler is running. Press Ctrl+C to stop.")

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down reconciler...")
	cronScheduler.Stop()
	logger.Info("Reconciler stopped. Goodbye!")
}
