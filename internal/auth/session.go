package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

const (
	// SessionCookieName carries the opaque session token.
	SessionCookieName = "fl_session"

	sessionTokenBytes = 32
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a server-side login session. SudoExpiresAt is set when the
// user re-authenticates and cleared once the elevation window passes.
type Session struct {
	Token         string
	UserID        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	SudoExpiresAt *time.Time
}

// IsSudo reports whether the session currently holds an unexpired
// elevation flag.
func (s *Session) IsSudo(now time.Time) bool {
	if s == nil || s.SudoExpiresAt == nil {
		return false
	}
	return now.Before(*s.SudoExpiresAt)
}

func (s *Session) IsExpired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	// ElevateSession stamps the sudo flag; a nil until clears it.
	ElevateSession(ctx context.Context, token string, until *time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
