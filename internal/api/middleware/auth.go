package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/faultline-hq/faultline/internal/api/problem"
	"github.com/faultline-hq/faultline/internal/auth"
)

type contextKeyAuth string

const identityKey contextKeyAuth = "identity"

// ActorSource resolves a user id to its authorization view.
type ActorSource interface {
	Actor(ctx context.Context, userID string) (*auth.Actor, error)
}

// Authenticate resolves the request's credential into an Identity and
// stores it on the context. Three credential shapes are accepted:
// an API key (fk_...) or API token (ft_...) in the Authorization
// header, or a session cookie. Requests without credentials pass
// through anonymous; requests with bad credentials are rejected.
func Authenticate(sessions auth.SessionStore, actors ActorSource, keys auth.APIKeyStore, tokens auth.APITokenStore, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, sessions, actors, keys, tokens)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}
			if identity != nil {
				next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), identity)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveIdentity(r *http.Request, sessions auth.SessionStore, actors ActorSource, keys auth.APIKeyStore, tokens auth.APITokenStore) (*auth.Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		secret, err := auth.BearerFromHeader(header)
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasPrefix(secret, auth.APIKeyPrefix):
			key, err := auth.ValidateAPIKey(r.Context(), keys, secret)
			if err != nil {
				return nil, err
			}
			return &auth.Identity{APIKey: key}, nil
		case strings.HasPrefix(secret, auth.APITokenPrefix):
			token, err := auth.ValidateAPIToken(r.Context(), tokens, secret)
			if err != nil {
				return nil, err
			}
			actor, err := actors.Actor(r.Context(), token.UserID)
			if err != nil {
				return nil, auth.ErrInvalidCredential
			}
			return &auth.Identity{Actor: actor, APIToken: token}, nil
		default:
			return nil, auth.ErrInvalidCredential
		}
	}

	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, nil
	}

	session, err := sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if session.IsExpired(time.Now()) {
		return nil, nil
	}

	actor, err := actors.Actor(r.Context(), session.UserID)
	if err != nil {
		return nil, nil
	}
	return &auth.Identity{Actor: actor, Session: session}, nil
}

func contextWithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// RequestWithIdentity returns a copy of r carrying the given identity.
// Handler tests use it to exercise authenticated paths without running
// the full middleware chain.
func RequestWithIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	if identity == nil {
		return r
	}
	return r.WithContext(contextWithIdentity(r.Context(), identity))
}

// Identity returns the request's identity, or nil for anonymous
// requests.
func Identity(r *http.Request) *auth.Identity {
	if r == nil {
		return nil
	}
	if identity, ok := r.Context().Value(identityKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}

// RequireAPIKey rejects requests not authenticated with a project API
// key. The store endpoint is SDK-facing and never session-based, so
// session and token identities are turned away too.
func RequireAPIKey(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity(r)
			if identity == nil || identity.APIKey == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "API key required", problem.ErrUnauthorized, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Identity(r).IsAuthenticated() {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", problem.ErrUnauthorized, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
