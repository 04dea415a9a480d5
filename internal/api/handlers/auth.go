package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/api/middleware"
	"github.com/faultline-hq/faultline/internal/api/problem"
	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/domain/users"
)

// AuthHandler owns the session lifecycle: login, sudo elevation and
// logout.
type AuthHandler struct {
	Users      *users.Service
	Sessions   auth.SessionStore
	SessionTTL time.Duration
	SudoTTL    time.Duration
	Secure     bool
	Env        string
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/0/auth/login/. A successful login starts a
// fresh session that is already sudo, matching the semantics of having
// just proven the password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed request body", err, h.Env)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid credentials", err, h.Env)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("authenticate")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	now := time.Now().UTC()
	sudoUntil := now.Add(h.SudoTTL)
	session := &auth.Session{
		Token:         token,
		UserID:        user.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(h.SessionTTL),
		SudoExpiresAt: &sudoUntil,
	}
	if err := h.Sessions.CreateSession(r.Context(), session); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("create session")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	h.setSessionCookie(w, token, session.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

type sudoRequest struct {
	Password string `json:"password"`
}

// Sudo handles POST /api/0/auth/sudo/: it re-verifies the caller's
// password and stamps the current session with a fresh sudo window.
// Users with no usable password are already sudo and get a 204 without
// re-verification.
func (h *AuthHandler) Sudo(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil || identity.Actor == nil || identity.Session == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", auth.ErrMissingCredential, h.Env)
		return
	}

	if !identity.Actor.PasswordUsable {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req sudoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed request body", err, h.Env)
		return
	}

	if _, err := h.Users.Authenticate(r.Context(), identity.Actor.Username, req.Password); err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid password", err, h.Env)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("sudo re-auth")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	until := time.Now().UTC().Add(h.SudoTTL)
	if err := h.Sessions.ElevateSession(r.Context(), identity.Session.Token, &until); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("elevate session")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/0/auth/logout/.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.Sessions.DeleteSession(r.Context(), cookie.Value); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/0/auth/register/.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed request body", err, h.Env)
		return
	}

	user, err := h.Users.Create(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidEmail):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid email address", err, h.Env)
		case errors.Is(err, users.ErrEmailTaken):
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Email already in use", err, h.Env)
		default:
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid registration", err, h.Env,
				problem.WithDetail(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}
