package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix and APITokenPrefix distinguish the two credential
	// kinds on the wire. Keys belong to an organization, tokens to a
	// user.
	APIKeyPrefix   = "fk_"
	APITokenPrefix = "ft_"

	// lookupPrefixLen is how many leading characters are stored in
	// clear for indexed lookup. The rest is validated against a bcrypt
	// hash.
	lookupPrefixLen = 11

	secretBytes = 24
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// APIKey is an organization-scoped bearer credential, typically used by
// ingestion agents and CI integrations.
type APIKey struct {
	ID             string
	Prefix         string
	Hash           string
	Label          string
	OrganizationID string
	Scopes         []string
	IsActive       bool
	ExpiresAt      *time.Time
}

// APIToken is a user-scoped bearer credential. Requests authenticated
// with either credential kind are exempt from sudo checks: the secret
// itself is considered proof of elevated intent.
type APIToken struct {
	ID        string
	Prefix    string
	Hash      string
	UserID    string
	Scopes    []string
	ExpiresAt *time.Time
}

type APIKeyStore interface {
	LookupKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	TouchKey(ctx context.Context, id string) error
}

type APITokenStore interface {
	LookupTokenByPrefix(ctx context.Context, prefix string) (*APIToken, error)
	CreateToken(ctx context.Context, token *APIToken) error
}

// BearerFromHeader extracts the raw bearer credential from an
// Authorization header value.
func BearerFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingCredential
	}
	secret := strings.TrimSpace(parts[1])
	if secret == "" || !utf8.ValidString(secret) {
		return "", ErrInvalidCredential
	}
	return secret, nil
}

// GenerateSecret mints a new credential secret with the given kind
// prefix and returns the secret, its lookup prefix, and its bcrypt hash.
func GenerateSecret(kindPrefix string) (secret, prefix, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	secret = kindPrefix + hex.EncodeToString(buf)
	prefix = secret[:lookupPrefixLen]
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", "", "", err
	}
	return secret, prefix, string(hashed), nil
}

// ValidateAPIKey resolves a raw secret to an active API key.
func ValidateAPIKey(ctx context.Context, store APIKeyStore, secret string) (*APIKey, error) {
	if store == nil || len(secret) < lookupPrefixLen || !strings.HasPrefix(secret, APIKeyPrefix) {
		return nil, ErrInvalidCredential
	}

	stored, err := store.LookupKeyByPrefix(ctx, secret[:lookupPrefixLen])
	if err != nil || stored == nil {
		return nil, ErrInvalidCredential
	}
	if !stored.IsActive {
		return nil, ErrInvalidCredential
	}
	if stored.ExpiresAt != nil && stored.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidCredential
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(secret)) != nil {
		return nil, ErrInvalidCredential
	}

	_ = store.TouchKey(ctx, stored.ID)
	return stored, nil
}

// ValidateAPIToken resolves a raw secret to a live API token.
func ValidateAPIToken(ctx context.Context, store APITokenStore, secret string) (*APIToken, error) {
	if store == nil || len(secret) < lookupPrefixLen || !strings.HasPrefix(secret, APITokenPrefix) {
		return nil, ErrInvalidCredential
	}

	stored, err := store.LookupTokenByPrefix(ctx, secret[:lookupPrefixLen])
	if err != nil || stored == nil {
		return nil, ErrInvalidCredential
	}
	if stored.ExpiresAt != nil && stored.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidCredential
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(secret)) != nil {
		return nil, ErrInvalidCredential
	}
	return stored, nil
}
