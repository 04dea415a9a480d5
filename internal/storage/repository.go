// Package storage defines the data access surface the API wires
// against. The postgres subpackage is the production implementation.
package storage

import (
	"context"

	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/domain/events"
	"github.com/faultline-hq/faultline/internal/domain/issues"
	"github.com/faultline-hq/faultline/internal/domain/tags"
	"github.com/faultline-hq/faultline/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Users() users.Repository
	Groups() issues.Repository
	Tags() tags.Repository
	Events() events.Repository
	Sessions() auth.SessionStore
	APIKeys() auth.APIKeyStore
	APITokens() auth.APITokenStore

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
