// Package jobs runs background maintenance on River: purging expired
// sessions and enforcing event retention.
package jobs

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/faultline-hq/faultline/internal/storage"
)

const (
	JobKindSessionCleanup = "session_cleanup"
	JobKindEventRetention = "event_retention"
)

const maintenanceMaxAttempts = 3

func NewWorkers(repo storage.Repository, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[SessionCleanupArgs](workers, SessionCleanupWorker{
		Sessions: repo.Sessions(),
		Logger:   logger,
	})
	river.AddWorker[EventRetentionArgs](workers, EventRetentionWorker{
		Repo:   repo,
		Logger: logger,
	})
	return workers
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	config := &river.Config{
		Workers:      workers,
		MaxAttempts:  maintenanceMaxAttempts,
		PeriodicJobs: NewPeriodicJobs(),
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
	}
	if logger != nil {
		config.Logger = logger
	}
	return river.NewClient(riverpgxv5.New(pool), config)
}

// NewPeriodicJobs creates the maintenance schedule: session cleanup
// hourly, retention enforcement daily.
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return SessionCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return EventRetentionArgs{}, nil
			},
			nil,
		),
	}
}
