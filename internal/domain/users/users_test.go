package users

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/config"
	"github.com/faultline-hq/faultline/internal/email"
)

type memRepo struct {
	users  map[string]*User
	emails map[string][]UserEmail
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]*User), emails: make(map[string][]UserEmail)}
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Create(_ context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memRepo) ListEmails(_ context.Context, userID string) ([]UserEmail, error) {
	return m.emails[userID], nil
}

func (m *memRepo) AddEmail(_ context.Context, userEmail *UserEmail) error {
	m.emails[userEmail.UserID] = append(m.emails[userEmail.UserID], *userEmail)
	return nil
}

func (m *memRepo) MarkEmailVerified(_ context.Context, userID, address string) error {
	for i, entry := range m.emails[userID] {
		if entry.Address == address {
			m.emails[userID][i].IsVerified = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) HasVerifiedEmail(_ context.Context, userID string) (bool, error) {
	for _, entry := range m.emails[userID] {
		if entry.IsVerified {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mailer, err := email.NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	verification := auth.NewVerificationManager("test-secret", time.Hour)
	return NewService(repo, verification, mailer, "http://localhost:8080", zerolog.Nop())
}

func TestCreateAndAuthenticate(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	user, err := svc.Create(context.Background(), "foo", "foo@example.com", "hunter22")
	require.NoError(t, err)

	got, err := svc.Authenticate(context.Background(), "foo", "hunter22")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), "foo", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreatePasswordlessAccount(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	user, err := svc.Create(context.Background(), "sso-user", "sso@example.com", "")
	require.NoError(t, err)
	require.False(t, auth.IsPasswordUsable(user.PasswordHash))

	// Password login is impossible for passwordless accounts.
	_, err = svc.Authenticate(context.Background(), "sso-user", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	actor, err := svc.Actor(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, actor.PasswordUsable)
}

func TestAddAndVerifyEmail(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	user, err := svc.Create(context.Background(), "foo", "foo@example.com", "hunter22")
	require.NoError(t, err)

	actor, err := svc.Actor(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, actor.HasVerifiedEmail)

	require.NoError(t, svc.AddEmail(context.Background(), user.ID, "second@example.com"))

	token, err := auth.NewVerificationManager("test-secret", time.Hour).Generate(user.ID, "second@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(context.Background(), token))

	actor, err = svc.Actor(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, actor.HasVerifiedEmail)
}

func TestVerifyEmailRejectsBadToken(t *testing.T) {
	svc := newTestService(t, newMemRepo())
	require.Error(t, svc.VerifyEmail(context.Background(), "garbage"))
}

func TestAddEmailRejectsInvalidAddress(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	user, err := svc.Create(context.Background(), "foo", "foo@example.com", "hunter22")
	require.NoError(t, err)

	require.ErrorIs(t, svc.AddEmail(context.Background(), user.ID, "not-an-address"), ErrInvalidEmail)
}

func TestDelete(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	user, err := svc.Create(context.Background(), "foo", "foo@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), user.ID))
	require.ErrorIs(t, svc.Delete(context.Background(), user.ID), ErrNotFound)
}
