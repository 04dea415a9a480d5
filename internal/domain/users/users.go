// Package users manages accounts, their email addresses, and the
// verification flow.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/domain/ids"
	"github.com/faultline-hq/faultline/internal/email"
)

// dummyHash is a bcrypt hash of an unguessable throwaway value, used to
// equalize timing when the username does not exist.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email address already in use")
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	DateJoined   time.Time
	IsActive     bool
}

type UserEmail struct {
	ID         string
	UserID     string
	Address    string
	IsVerified bool
	IsPrimary  bool
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error

	ListEmails(ctx context.Context, userID string) ([]UserEmail, error)
	AddEmail(ctx context.Context, userEmail *UserEmail) error
	MarkEmailVerified(ctx context.Context, userID, address string) error
	HasVerifiedEmail(ctx context.Context, userID string) (bool, error)
}

type Service struct {
	repo         Repository
	verification *auth.VerificationManager
	mailer       *email.Service
	baseURL      string
	logger       zerolog.Logger
}

func NewService(repo Repository, verification *auth.VerificationManager, mailer *email.Service, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		verification: verification,
		mailer:       mailer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger.With().Str("component", "users").Logger(),
	}
}

// Authenticate resolves username/password to a user. Accounts with an
// unusable password can never authenticate this way.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a comparison anyway so the timing does not leak
			// whether the username exists.
			auth.CheckPassword(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Actor assembles the authorization view of a user.
func (s *Service) Actor(ctx context.Context, userID string) (*auth.Actor, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	verified, err := s.repo.HasVerifiedEmail(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &auth.Actor{
		ID:               user.ID,
		Username:         user.Username,
		PasswordUsable:   auth.IsPasswordUsable(user.PasswordHash),
		HasVerifiedEmail: verified,
	}, nil
}

// Create registers a user. An empty password produces a passwordless
// account with an unusable hash.
func (s *Service) Create(ctx context.Context, username, emailAddress, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if _, err := mail.ParseAddress(emailAddress); err != nil {
		return nil, ErrInvalidEmail
	}

	hash := auth.UnusablePassword()
	if password != "" {
		var err error
		hash, err = auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
	}

	user := &User{
		ID:           ids.NewUUID(),
		Username:     username,
		PasswordHash: hash,
		DateJoined:   time.Now().UTC(),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.repo.AddEmail(ctx, &UserEmail{
		ID:        ids.NewUUID(),
		UserID:    user.ID,
		Address:   emailAddress,
		IsPrimary: true,
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// AddEmail attaches an address to the account and mails a verification
// link for it.
func (s *Service) AddEmail(ctx context.Context, userID, address string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return ErrInvalidEmail
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.AddEmail(ctx, &UserEmail{
		ID:      ids.NewUUID(),
		UserID:  userID,
		Address: address,
	}); err != nil {
		return err
	}

	token, err := s.verification.Generate(userID, address)
	if err != nil {
		return fmt.Errorf("mint verification token: %w", err)
	}
	link := s.baseURL + "/api/0/verify-email/" + token + "/"
	if err := s.mailer.SendVerification(ctx, address, user.Username, link); err != nil {
		// The address is stored; the owner can request another mail.
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("verification email failed")
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the address
// verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.verification.Validate(token)
	if err != nil {
		return err
	}
	return s.repo.MarkEmailVerified(ctx, claims.Subject, claims.Email)
}

// Delete removes the account. Callers are expected to have passed a
// sudo check first.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("account deleted")
	return nil
}
