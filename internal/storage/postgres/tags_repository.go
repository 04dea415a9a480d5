package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline-hq/faultline/internal/domain/events"
	"github.com/faultline-hq/faultline/internal/domain/tags"
	"github.com/faultline-hq/faultline/internal/storage/queryset"
)

type TagRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *TagRepository) ListValues(ctx context.Context, groupID, key string, sort tags.Sort, limit int) ([]tags.GroupTagValue, error) {
	order := "v.last_seen DESC"
	if sort == tags.SortCount {
		order = "v.times_seen DESC"
	}

	table := fmt.Sprintf(`group_tag_values v
  JOIN groups g ON g.id = v.group_id
  LEFT JOIN event_users u
	ON v.key = '%s' AND u.project_id = g.project_id AND u.tag_value = v.value`, events.UserTagKey)

	sql, args, err := queryset.Select(table).
		Values("v.key", "v.value", "v.times_seen", "v.first_seen", "v.last_seen",
			"u.ident", "u.username", "u.email", "u.ip_address").
		Where("v.group_id = ? AND v.key = ?", groupID, key).
		OrderBy(order).
		Limit(limit).
		SQL()
	if err != nil {
		return nil, err
	}

	rows, err := pick(r.pool, r.tx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list tag values: %w", err)
	}
	defer rows.Close()

	var out []tags.GroupTagValue
	for rows.Next() {
		var (
			v                          tags.GroupTagValue
			ident, username, email, ip *string
		)
		if err := rows.Scan(&v.Key, &v.Value, &v.TimesSeen, &v.FirstSeen, &v.LastSeen,
			&ident, &username, &email, &ip); err != nil {
			return nil, fmt.Errorf("scan tag value: %w", err)
		}
		if v.Key == events.UserTagKey {
			v.User = &tags.EventUser{
				Ident:     derefString(ident),
				Username:  derefString(username),
				Email:     derefString(email),
				IPAddress: derefString(ip),
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *TagRepository) UpsertValue(ctx context.Context, groupID, key, value string, seenAt time.Time) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO group_tag_values (id, group_id, key, value, times_seen, first_seen, last_seen)
VALUES (gen_random_uuid(), $1, $2, $3, 1, $4, $4)
ON CONFLICT (group_id, key, value) DO UPDATE
   SET times_seen = group_tag_values.times_seen + 1,
       first_seen = LEAST(group_tag_values.first_seen, EXCLUDED.first_seen),
       last_seen  = GREATEST(group_tag_values.last_seen, EXCLUDED.last_seen)
`, groupID, key, value, seenAt)
	if err != nil {
		return fmt.Errorf("upsert tag value: %w", err)
	}
	return nil
}

func (r *TagRepository) UpsertEventUser(ctx context.Context, projectID string, user tags.EventUser, tagValue string, seenAt time.Time) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO event_users (id, project_id, ident, username, email, ip_address, tag_value, date_added)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_id, tag_value) DO UPDATE
   SET ident      = EXCLUDED.ident,
       username   = EXCLUDED.username,
       email      = EXCLUDED.email,
       ip_address = EXCLUDED.ip_address
`, projectID, user.Ident, user.Username, user.Email, user.IPAddress, tagValue, seenAt)
	if err != nil {
		return fmt.Errorf("upsert event user: %w", err)
	}
	return nil
}

func (r *TagRepository) DeleteValuesForGroups(ctx context.Context, groupIDs []string) (int64, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
DELETE FROM group_tag_values WHERE group_id = ANY($1)
`, groupIDs)
	if err != nil {
		return 0, fmt.Errorf("delete tag values: %w", err)
	}
	return tag.RowsAffected(), nil
}
