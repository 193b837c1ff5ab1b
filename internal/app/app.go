// Package app wires the store, settings, ledger and lifecycle shared by the
// server and the reconciler binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"chargeshare-backend/internal/config"
	"chargeshare-backend/internal/jobs"
	"chargeshare-backend/internal/ledger"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/notify"
	"chargeshare-backend/internal/repository"
	"chargeshare-backend/internal/repository/memory"
	"chargeshare-backend/internal/repository/postgres"
	"chargeshare-backend/internal/service"
	"chargeshare-backend/internal/settings"
)

const (
	demoSlots     = 8
	notifyTimeout = 5 * time.Second
)

// App holds the long-lived components. Close releases them.
type App struct {
	Store     repository.Store
	Allocator *service.ResourceAllocator
	Lifecycle *service.Lifecycle
	Events    *service.KioskEventService
	Notes     service.NotificationService
	Hook      *notify.Async

	closers []func() error
}

// New connects to the configured store and builds the lifecycle on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	store, err := a.openStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	cache, err := a.settingsCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	cfgStore := settings.NewStore(store.FeeConfigs(), store.AppConfig(), cache, cfg.SettingsCacheTTL())

	a.Hook = notify.NewAsync(notify.NewRecorder(store.Notifications()), notifyTimeout)
	a.Allocator = service.NewResourceAllocator()
	a.Lifecycle = service.NewLifecycle(store, a.Allocator, ledger.NewGateway(store), a.Hook, cfgStore, LifecycleOptions(cfg))
	a.Events = service.NewKioskEventService(store, a.Allocator, a.Lifecycle)
	a.Notes = service.NewNotificationService(store.Notifications())
	return a, nil
}

// LifecycleOptions maps the rental section onto service options.
func LifecycleOptions(cfg *config.Config) service.Options {
	r := cfg.Rental
	return service.Options{
		MinBatteryLevel:    r.MinBatteryLevel,
		CancellationWindow: time.Duration(r.CancellationWindowMinutes) * time.Minute,
		MaxExtensions:      r.MaxExtensions,
		AbandonmentAfter:   time.Duration(r.AbandonmentHours) * time.Hour,
		AbandonmentPenalty: r.Penalty(),
		CompletionBonus:    r.CompletionBonus(),
		StalePendingAfter:  time.Duration(r.StalePendingMinutes) * time.Minute,
		DueReminderBefore:  time.Duration(r.DueReminderMinutes) * time.Minute,
		MaxConflictRetries: r.MaxConflictRetries,
	}
}

// JobRunner builds the reconciler sweeps with the same thresholds as the lifecycle.
func (a *App) JobRunner(cfg *config.Config) *jobs.JobRunner {
	o := LifecycleOptions(cfg)
	return jobs.NewJobRunner(a.Store, a.Lifecycle, jobs.Options{
		BatchSize:          cfg.Reconciler.BatchSize,
		CancellationWindow: o.CancellationWindow,
		AbandonmentAfter:   o.AbandonmentAfter,
		StalePendingAfter:  o.StalePendingAfter,
		DueReminderBefore:  o.DueReminderBefore,
	})
}

func (a *App) openStore(cfg *config.Config) (repository.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store with demo data; state is lost on exit")
		store := memory.NewStore()
		store.SeedDemo(demoSlots)
		return store, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	// Test database connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.RunMigrations {
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
	}
	return postgres.NewStore(db, cfg.LockTimeout()), nil
}

func (a *App) settingsCache(ctx context.Context, cfg *config.Config) (settings.Cache, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("Using in-process settings cache")
		return settings.NewLocalCache(cfg.SettingsCacheTTL()), nil
	}
	client, err := settings.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 5*time.Second)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	logger.Info("Using redis settings cache", "addr", cfg.Redis.Addr)
	return settings.NewRedisCache(client), nil
}

// Close waits for pending notifications, then releases connections.
func (a *App) Close() {
	if a.Hook != nil {
		a.Hook.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}
}
