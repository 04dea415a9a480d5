package auth

import "time"

// Actor is the authenticated user as seen by authorization checks.
type Actor struct {
	ID               string
	Username         string
	PasswordUsable   bool
	HasVerifiedEmail bool
}

// Identity is the outcome of request authentication. At most one of
// APIKey and APIToken is set; Actor and Session are set together for
// cookie-based logins, and Actor alone for token logins.
type Identity struct {
	Actor    *Actor
	Session  *Session
	APIKey   *APIKey
	APIToken *APIToken
}

func (id *Identity) IsAuthenticated() bool {
	return id != nil && (id.Actor != nil || id.APIKey != nil)
}

// HasSudoPrivileges is the session-layer elevation check. Users without
// a usable password are assumed to always have sudo powers: they cannot
// re-enter a password, so the elevation prompt would lock them out.
// Everyone else needs a live sudo flag on the session.
func (id *Identity) HasSudoPrivileges(now time.Time) bool {
	if id == nil {
		return false
	}
	if id.Actor != nil && !id.Actor.PasswordUsable {
		return true
	}
	return id.Session.IsSudo(now)
}

// IsConsideredSudo reports whether the request may perform sudo-gated
// operations. Requests authenticated through an API key or token do not
// carry a session, so the sudo flag is irrelevant for them.
func IsConsideredSudo(id *Identity, now time.Time) bool {
	if id == nil {
		return false
	}
	return id.HasSudoPrivileges(now) || id.APIKey != nil || id.APIToken != nil
}
