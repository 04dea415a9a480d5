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
	"github.com/faultline-hq/faultline/internal/domain/ids"
	"github.com/faultline-hq/faultline/internal/domain/users"
)

// AccountHandler covers account management: deletion, email addresses
// and personal API tokens.
type AccountHandler struct {
	Users  *users.Service
	Tokens auth.APITokenStore
	Env    string
}

// Delete handles DELETE /api/0/users/{user_id}/. The route is wrapped
// with the sudo guard; here we only check the caller owns the account.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil || identity.Actor == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", auth.ErrMissingCredential, h.Env)
		return
	}

	userID := pathParam(r, "user_id")
	if userID != identity.Actor.ID {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Cannot delete another account", nil, h.Env)
		return
	}

	if err := h.Users.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, h.Env)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user", userID).Msg("delete user")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type addEmailRequest struct {
	Email string `json:"email"`
}

// AddEmail handles POST /api/0/users/me/emails/. It stores the address
// unverified and sends a verification link.
func (h *AccountHandler) AddEmail(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil || identity.Actor == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", auth.ErrMissingCredential, h.Env)
		return
	}

	var req addEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed request body", err, h.Env)
		return
	}

	if err := h.Users.AddEmail(r.Context(), identity.Actor.ID, req.Email); err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidEmail):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid email address", err, h.Env)
		case errors.Is(err, users.ErrEmailTaken):
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Email already in use", err, h.Env)
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("add email")
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// VerifyEmail handles GET /api/0/verify-email/{token}/. The token is
// the signed link emitted by AddEmail.
func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if err := h.Users.VerifyEmail(r.Context(), token); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid verification token", err, h.Env,
			problem.WithDetail("the verification link is invalid or has expired"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type createTokenRequest struct {
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type createTokenResponse struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreateAPIToken handles POST /api/0/api-tokens/. The route is wrapped
// with the verified-email guard. The plaintext secret is returned once
// and never stored.
func (h *AccountHandler) CreateAPIToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil || identity.Actor == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Authentication required", auth.ErrMissingCredential, h.Env)
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed request body", err, h.Env)
		return
	}

	secret, prefix, hash, err := auth.GenerateSecret(auth.APITokenPrefix)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	token := &auth.APIToken{
		ID:        ids.NewUUID(),
		Prefix:    prefix,
		Hash:      hash,
		UserID:    identity.Actor.ID,
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.Tokens.CreateToken(r.Context(), token); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("create api token")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, createTokenResponse{
		ID:        token.ID,
		Token:     secret,
		Scopes:    token.Scopes,
		ExpiresAt: token.ExpiresAt,
	})
}
