package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline-hq/faultline/internal/domain/users"
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const userColumns = `id, username, password_hash, date_joined, is_active`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE id = $1
`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE username = $1
`, username)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DateJoined, &u.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *users.User) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO users (id, username, password_hash, date_joined, is_active)
VALUES ($1, $2, $3, $4, $5)
`, user.ID, user.Username, user.PasswordHash, user.DateJoined, user.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("username %q already exists", user.Username)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListEmails(ctx context.Context, userID string) ([]users.UserEmail, error) {
	rows, err := pick(r.pool, r.tx).Query(ctx, `
SELECT id, user_id, address, is_verified, is_primary
  FROM user_emails
 WHERE user_id = $1
 ORDER BY is_primary DESC, address
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var out []users.UserEmail
	for rows.Next() {
		var e users.UserEmail
		if err := rows.Scan(&e.ID, &e.UserID, &e.Address, &e.IsVerified, &e.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *UserRepository) AddEmail(ctx context.Context, userEmail *users.UserEmail) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO user_emails (id, user_id, address, is_verified, is_primary)
VALUES ($1, $2, $3, $4, $5)
`, userEmail.ID, userEmail.UserID, userEmail.Address, userEmail.IsVerified, userEmail.IsPrimary)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("add email: %w", err)
	}
	return nil
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID, address string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE user_emails
   SET is_verified = true
 WHERE user_id = $1 AND address = $2
`, userID, address)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) HasVerifiedEmail(ctx context.Context, userID string) (bool, error) {
	var verified bool
	err := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM user_emails WHERE user_id = $1 AND is_verified = true
)
`, userID).Scan(&verified)
	if err != nil {
		return false, fmt.Errorf("check verified email: %w", err)
	}
	return verified, nil
}
