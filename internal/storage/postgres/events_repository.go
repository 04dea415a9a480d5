package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline-hq/faultline/internal/domain/events"
)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) Insert(ctx context.Context, event *events.Event) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO events (id, ulid, group_id, project_id, message, platform, timestamp, received)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, event.ID, event.ULID, event.GroupID, event.ProjectID, event.Message, event.Platform,
		event.Timestamp, event.Received)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM events WHERE received < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return tag.RowsAffected(), nil
}
