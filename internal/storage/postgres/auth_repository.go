package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline-hq/faultline/internal/auth"
)

type SessionRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *auth.Session) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO sessions (token, user_id, created_at, expires_at, sudo_expires_at)
VALUES ($1, $2, $3, $4, $5)
`, session.Token, session.UserID, session.CreatedAt, session.ExpiresAt, session.SudoExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT token, user_id, created_at, expires_at, sudo_expires_at
  FROM sessions
 WHERE token = $1
`, token)

	var s auth.Session
	if err := row.Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.SudoExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) ElevateSession(ctx context.Context, token string, until *time.Time) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE sessions SET sudo_expires_at = $2 WHERE token = $1
`, token, until)
	if err != nil {
		return fmt.Errorf("elevate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, token string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

type APIKeyRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *APIKeyRepository) LookupKeyByPrefix(ctx context.Context, prefix string) (*auth.APIKey, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT id, prefix, key_hash, label, organization_id, scopes, is_active, expires_at
  FROM api_keys
 WHERE prefix = $1
 LIMIT 1
`, prefix)

	var key auth.APIKey
	if err := row.Scan(
		&key.ID,
		&key.Prefix,
		&key.Hash,
		&key.Label,
		&key.OrganizationID,
		&key.Scopes,
		&key.IsActive,
		&key.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrInvalidCredential
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return &key, nil
}

func (r *APIKeyRepository) TouchKey(ctx context.Context, id string) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// CreateKey persists a freshly minted organization key. It is used by
// the apikey CLI command rather than the HTTP surface.
func (r *APIKeyRepository) CreateKey(ctx context.Context, key *auth.APIKey) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO api_keys (id, prefix, key_hash, label, organization_id, scopes, is_active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, key.ID, key.Prefix, key.Hash, key.Label, key.OrganizationID, key.Scopes, key.IsActive, key.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

type APITokenRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *APITokenRepository) LookupTokenByPrefix(ctx context.Context, prefix string) (*auth.APIToken, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT id, prefix, token_hash, user_id, scopes, expires_at
  FROM api_tokens
 WHERE prefix = $1
 LIMIT 1
`, prefix)

	var token auth.APIToken
	if err := row.Scan(
		&token.ID,
		&token.Prefix,
		&token.Hash,
		&token.UserID,
		&token.Scopes,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrInvalidCredential
		}
		return nil, fmt.Errorf("lookup api token: %w", err)
	}
	return &token, nil
}

func (r *APITokenRepository) CreateToken(ctx context.Context, token *auth.APIToken) error {
	_, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO api_tokens (id, prefix, token_hash, user_id, scopes, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, token.ID, token.Prefix, token.Hash, token.UserID, token.Scopes, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}
