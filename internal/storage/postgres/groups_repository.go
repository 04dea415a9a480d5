package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline-hq/faultline/internal/domain/issues"
)

type GroupRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const groupColumns = `id, ulid, project_id, fingerprint, title, platform, status, times_seen, first_seen, last_seen`

func (r *GroupRepository) GetByULID(ctx context.Context, ulid string) (*issues.Group, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT `+groupColumns+`
  FROM groups
 WHERE ulid = $1
`, ulid)
	return scanGroup(row)
}

func (r *GroupRepository) FindByFingerprint(ctx context.Context, projectID, fingerprint string) (*issues.Group, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT `+groupColumns+`
  FROM groups
 WHERE project_id = $1 AND fingerprint = $2
`, projectID, fingerprint)
	return scanGroup(row)
}

func scanGroup(row pgx.Row) (*issues.Group, error) {
	var g issues.Group
	if err := row.Scan(
		&g.ID,
		&g.ULID,
		&g.ProjectID,
		&g.Fingerprint,
		&g.Title,
		&g.Platform,
		&g.Status,
		&g.TimesSeen,
		&g.FirstSeen,
		&g.LastSeen,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, issues.ErrNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &g, nil
}

func (r *GroupRepository) Create(ctx context.Context, group *issues.Group) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO groups (id, ulid, project_id, fingerprint, title, platform, status, times_seen, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, group.ID, group.ULID, group.ProjectID, group.Fingerprint, group.Title, group.Platform,
		group.Status, group.TimesSeen, group.FirstSeen, group.LastSeen)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return issues.ErrExists
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (r *GroupRepository) RecordSeen(ctx context.Context, id string, seenAt time.Time) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE groups
   SET times_seen = times_seen + 1,
       last_seen  = GREATEST(last_seen, $2)
 WHERE id = $1
`, id, seenAt)
	if err != nil {
		return fmt.Errorf("record seen: %w", err)
	}
	return nil
}

func (r *GroupRepository) DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := pick(r.pool, r.tx).Query(ctx, `
DELETE FROM groups
 WHERE last_seen < $1
RETURNING id
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete stale groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
