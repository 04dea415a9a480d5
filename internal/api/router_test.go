package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/config"
)

func TestMethodMux(t *testing.T) {
	getHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("GET response"))
	})

	postHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("POST response"))
	})

	handlers := map[string]http.Handler{
		http.MethodGet:  getHandler,
		http.MethodPost: postHandler,
	}

	mux := methodMux(handlers)

	tests := []struct {
		name         string
		method       string
		expectStatus int
		expectBody   string
		expectAllow  string
	}{
		{
			name:         "GET allowed",
			method:       http.MethodGet,
			expectStatus: http.StatusOK,
			expectBody:   "GET response",
		},
		{
			name:         "POST allowed",
			method:       http.MethodPost,
			expectStatus: http.StatusCreated,
			expectBody:   "POST response",
		},
		{
			name:         "DELETE not allowed",
			method:       http.MethodDelete,
			expectStatus: http.StatusMethodNotAllowed,
			expectAllow:  "GET, POST",
		},
		{
			name:         "PATCH not allowed",
			method:       http.MethodPatch,
			expectStatus: http.StatusMethodNotAllowed,
			expectAllow:  "GET, POST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectStatus)
			}
			if tt.expectBody != "" && w.Body.String() != tt.expectBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.expectBody)
			}
			if tt.expectAllow != "" && w.Header().Get("Allow") != tt.expectAllow {
				t.Errorf("Allow = %q, want %q", w.Header().Get("Allow"), tt.expectAllow)
			}
		})
	}
}

// newTestRouter builds the full router against a lazily connecting pool.
// Routes that never reach the database can be exercised without one.
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return newTestRouterCfg(t, config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			SessionTTL:         time.Hour,
			SudoTTL:            3 * time.Hour,
			VerificationSecret: "test-secret",
			VerificationExpiry: time.Hour,
		},
	})
}

func newTestRouterCfg(t *testing.T, cfg config.Config) *Router {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, "postgres://localhost:5/faultline_test")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	router, err := NewRouter(cfg, zerolog.Nop(), pool, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return router
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/0/issues/01HZXW5N8GQ2J4K6M8P0R2T4V6/tags/foo/values/"},
		{http.MethodPost, "/api/0/auth/sudo/"},
		{http.MethodPost, "/api/0/projects/p1/store/"},
		{http.MethodDelete, "/api/0/users/u1/"},
		{http.MethodPost, "/api/0/users/me/emails/"},
		{http.MethodPost, "/api/0/api-tokens/"},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		w := httptest.NewRecorder()
		router.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", route.method, route.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouterLoginRateLimit(t *testing.T) {
	router := newTestRouterCfg(t, config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			SessionTTL:         time.Hour,
			SudoTTL:            3 * time.Hour,
			VerificationSecret: "test-secret",
			VerificationExpiry: time.Hour,
		},
		RateLimit: config.RateLimitConfig{LoginPerHour: 1},
	})

	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/0/auth/login/", nil)
		w := httptest.NewRecorder()
		router.Handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] == http.StatusTooManyRequests {
		t.Fatalf("first request already limited: %v", statuses)
	}
	for _, code := range statuses[1:] {
		if code != http.StatusTooManyRequests {
			t.Errorf("statuses = %v, want 429 after the first request", statuses)
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
