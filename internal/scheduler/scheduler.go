package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"chargeshare-backend/internal/config"
	"chargeshare-backend/internal/jobs"
	"chargeshare-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
	cfg  config.SchedulerConfig
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner, cfg config.SchedulerConfig) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
		cfg:  cfg,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	registered := 0
	for _, entry := range []struct {
		spec string
		job  string
	}{
		{s.cfg.Reconcile, "reconcile"},
		{s.cfg.DueReminders, "due-reminders"},
		{s.cfg.IntegrityCheck, "integrity"},
	} {
		if entry.spec == "" {
			logger.Warn("Job has no schedule, skipping", "job", entry.job)
			continue
		}
		if _, err := s.cron.AddFunc(entry.spec, s.jobs.Func(entry.job)); err != nil {
			logger.Error("Failed to register job", "job", entry.job, "spec", entry.spec, "error", err)
			continue
		}
		registered++
	}

	logger.Info("Cron jobs registered", "count", registered)
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
