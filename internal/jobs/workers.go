package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/metrics"
	"github.com/faultline-hq/faultline/internal/storage"
)

// SessionCleanupArgs defines the job that deletes expired sessions.
type SessionCleanupArgs struct{}

func (SessionCleanupArgs) Kind() string { return JobKindSessionCleanup }

type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	Sessions auth.SessionStore
	Logger   *slog.Logger
}

func (SessionCleanupWorker) Kind() string { return JobKindSessionCleanup }

func (w SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	if w.Sessions == nil {
		return fmt.Errorf("session store not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	purged, err := w.Sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	metrics.SessionsPurged.Add(float64(purged))
	logger.Info("session cleanup completed",
		"purged", purged,
		"attempt", job.Attempt,
	)
	return nil
}

// DefaultRetention is how long events and idle groups are kept.
const DefaultRetention = 90 * 24 * time.Hour

// EventRetentionArgs defines the job that enforces event retention:
// old events are dropped, groups idle past the retention window are
// deleted, and their tag aggregates are pruned with them.
type EventRetentionArgs struct {
	Retention time.Duration `json:"retention,omitempty"`
}

func (EventRetentionArgs) Kind() string { return JobKindEventRetention }

type EventRetentionWorker struct {
	river.WorkerDefaults[EventRetentionArgs]
	Repo   storage.Repository
	Logger *slog.Logger
}

func (EventRetentionWorker) Kind() string { return JobKindEventRetention }

func (w EventRetentionWorker) Work(ctx context.Context, job *river.Job[EventRetentionArgs]) error {
	if w.Repo == nil {
		return fmt.Errorf("repository not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := job.Args.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)

	eventsDeleted, err := w.Repo.Events().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}

	var staleGroups []string
	var tagValuesDeleted int64
	err = w.Repo.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		ids, err := repo.Groups().DeleteStale(ctx, cutoff)
		if err != nil {
			return err
		}
		staleGroups = ids
		n, err := repo.Tags().DeleteValuesForGroups(ctx, ids)
		if err != nil {
			return err
		}
		tagValuesDeleted = n
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune stale groups: %w", err)
	}

	logger.Info("event retention completed",
		"cutoff", cutoff,
		"events_deleted", eventsDeleted,
		"groups_deleted", len(staleGroups),
		"tag_values_deleted", tagValuesDeleted,
	)
	return nil
}
