package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline/internal/api/middleware"
	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/domain/users"
)

type memTokenStore struct {
	tokens []*auth.APIToken
}

func (m *memTokenStore) LookupTokenByPrefix(_ context.Context, prefix string) (*auth.APIToken, error) {
	for _, tok := range m.tokens {
		if tok.Prefix == prefix {
			return tok, nil
		}
	}
	return nil, auth.ErrInvalidCredential
}

func (m *memTokenStore) CreateToken(_ context.Context, token *auth.APIToken) error {
	m.tokens = append(m.tokens, token)
	return nil
}

func newAccountFixture(t *testing.T) (*AccountHandler, *memUserRepo, *memTokenStore) {
	t.Helper()
	repo := &memUserRepo{}
	tokens := &memTokenStore{}
	handler := &AccountHandler{
		Users:  newUsersService(t, repo),
		Tokens: tokens,
		Env:    "test",
	}
	return handler, repo, tokens
}

func TestDeleteOwnAccount(t *testing.T) {
	handler, repo, _ := newAccountFixture(t)
	user := seedUser(t, handler.Users, "ada", "ada@example.com", "pw")

	mux := http.NewServeMux()
	mux.Handle("/api/0/users/{user_id}/{$}", http.HandlerFunc(handler.Delete))

	req := httptest.NewRequest(http.MethodDelete, "/api/0/users/"+user.ID+"/", nil)
	req = middleware.RequestWithIdentity(req, &auth.Identity{
		Actor: &auth.Actor{ID: user.ID, Username: "ada"},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err := repo.GetByID(context.Background(), user.ID)
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestDeleteForeignAccountForbidden(t *testing.T) {
	handler, repo, _ := newAccountFixture(t)
	victim := seedUser(t, handler.Users, "victim", "victim@example.com", "pw")

	mux := http.NewServeMux()
	mux.Handle("/api/0/users/{user_id}/{$}", http.HandlerFunc(handler.Delete))

	req := httptest.NewRequest(http.MethodDelete, "/api/0/users/"+victim.ID+"/", nil)
	req = middleware.RequestWithIdentity(req, &auth.Identity{
		Actor: &auth.Actor{ID: "someone-else", Username: "mallory"},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	_, err := repo.GetByID(context.Background(), victim.ID)
	require.NoError(t, err)
}

func TestAddEmailAndVerify(t *testing.T) {
	handler, repo, _ := newAccountFixture(t)
	user := seedUser(t, handler.Users, "ada", "ada@example.com", "pw")

	identity := &auth.Identity{Actor: &auth.Actor{ID: user.ID, Username: "ada"}}
	req := httptest.NewRequest(http.MethodPost, "/api/0/users/me/emails/",
		strings.NewReader(`{"email":"second@example.com"}`))
	req = middleware.RequestWithIdentity(req, identity)
	rec := httptest.NewRecorder()
	handler.AddEmail(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	verified, err := repo.HasVerifiedEmail(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, verified)

	// Mint the same token the emailed link carries and follow it.
	token, err := auth.NewVerificationManager("test-secret", time.Hour).Generate(user.ID, "second@example.com")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/api/0/verify-email/{token}/{$}", http.HandlerFunc(handler.VerifyEmail))
	req = httptest.NewRequest(http.MethodGet, "/api/0/verify-email/"+token+"/", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	verified, err = repo.HasVerifiedEmail(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, verified)
}

func TestVerifyEmailRejectsGarbageToken(t *testing.T) {
	handler, _, _ := newAccountFixture(t)

	mux := http.NewServeMux()
	mux.Handle("/api/0/verify-email/{token}/{$}", http.HandlerFunc(handler.VerifyEmail))
	req := httptest.NewRequest(http.MethodGet, "/api/0/verify-email/not-a-token/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAPITokenReturnsSecretOnce(t *testing.T) {
	handler, _, tokens := newAccountFixture(t)
	user := seedUser(t, handler.Users, "ada", "ada@example.com", "pw")

	identity := &auth.Identity{Actor: &auth.Actor{ID: user.ID, HasVerifiedEmail: true}}
	req := httptest.NewRequest(http.MethodPost, "/api/0/api-tokens/",
		strings.NewReader(`{"scopes":["event:read"]}`))
	req = middleware.RequestWithIdentity(req, identity)
	rec := httptest.NewRecorder()
	handler.CreateAPIToken(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, strings.HasPrefix(body.Token, auth.APITokenPrefix))

	require.Len(t, tokens.tokens, 1)
	stored := tokens.tokens[0]
	require.Equal(t, user.ID, stored.UserID)
	require.NotEqual(t, body.Token, stored.Hash)

	validated, err := auth.ValidateAPIToken(context.Background(), tokens, body.Token)
	require.NoError(t, err)
	require.Equal(t, stored.ID, validated.ID)
}
