// Package api assembles the HTTP surface: repositories, domain
// services, handlers and the middleware chain.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/api/handlers"
	"github.com/faultline-hq/faultline/internal/api/middleware"
	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/cache"
	"github.com/faultline-hq/faultline/internal/config"
	"github.com/faultline-hq/faultline/internal/domain/events"
	"github.com/faultline-hq/faultline/internal/domain/issues"
	"github.com/faultline-hq/faultline/internal/domain/tags"
	"github.com/faultline-hq/faultline/internal/domain/users"
	"github.com/faultline-hq/faultline/internal/email"
	"github.com/faultline-hq/faultline/internal/jobs"
	"github.com/faultline-hq/faultline/internal/metrics"
	"github.com/faultline-hq/faultline/internal/storage/postgres"
)

// Router bundles the assembled handler with the background job client
// so the serve command can manage both lifecycles.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
}

func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tagCache *cache.Cache) (*Router, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, err
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, err
	}

	verification := auth.NewVerificationManager(cfg.Auth.VerificationSecret, cfg.Auth.VerificationExpiry)
	usersService := users.NewService(repo.Users(), verification, mailer, cfg.Server.BaseURL, logger)
	issuesService := issues.NewService(repo.Groups())
	tagsService := tags.NewService(repo.Tags(), valueCache(tagCache))
	ingestService := events.NewIngestService(repo.Events(), repo.Groups(), repo.Tags(), tagInvalidator(tagCache), logger)

	riverClient, err := jobs.NewClient(pool, jobs.NewWorkers(repo, slog.Default()), slog.Default())
	if err != nil {
		return nil, err
	}

	env := cfg.Environment
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	authHandler := &handlers.AuthHandler{
		Users:      usersService,
		Sessions:   repo.Sessions(),
		SessionTTL: cfg.Auth.SessionTTL,
		SudoTTL:    cfg.Auth.SudoTTL,
		Secure:     secure,
		Env:        env,
	}
	accountHandler := &handlers.AccountHandler{
		Users:  usersService,
		Tokens: repo.APITokens(),
		Env:    env,
	}
	tagValuesHandler := &handlers.GroupTagValuesHandler{
		Issues: issuesService,
		Tags:   tagsService,
		Env:    env,
	}
	storeHandler := &handlers.StoreHandler{
		Ingest: ingestService,
		Env:    env,
	}

	requireAuth := middleware.RequireAuth(env)
	requireSudo := middleware.RequireSudo(env)
	requireVerified := middleware.RequireVerifiedEmail(env)
	requireAPIKey := middleware.RequireAPIKey(env)

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	publicTier := limiter.Limit(middleware.TierPublic)
	loginTier := limiter.Limit(middleware.TierLogin)
	ingestTier := limiter.Limit(middleware.TierIngest)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(map[string]handlers.Pinger{
		"postgres": poolPinger{pool},
		"redis":    redisPinger(tagCache),
	}))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/0/auth/register/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(http.HandlerFunc(authHandler.Register)),
	}))
	mux.Handle("/api/0/auth/login/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(http.HandlerFunc(authHandler.Login)),
	}))
	mux.Handle("/api/0/auth/sudo/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: publicTier(requireAuth(http.HandlerFunc(authHandler.Sudo))),
	}))
	mux.Handle("/api/0/auth/logout/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: publicTier(http.HandlerFunc(authHandler.Logout)),
	}))

	mux.Handle("/api/0/issues/{group_id}/tags/{key}/values/{$}", methodMux(map[string]http.Handler{
		http.MethodGet: publicTier(requireAuth(http.HandlerFunc(tagValuesHandler.List))),
	}))
	mux.Handle("/api/0/projects/{project_id}/store/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: ingestTier(requireAPIKey(http.HandlerFunc(storeHandler.Store))),
	}))

	mux.Handle("/api/0/users/{user_id}/{$}", methodMux(map[string]http.Handler{
		http.MethodDelete: publicTier(requireAuth(requireSudo(http.HandlerFunc(accountHandler.Delete)))),
	}))
	mux.Handle("/api/0/users/me/emails/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: publicTier(requireAuth(http.HandlerFunc(accountHandler.AddEmail))),
	}))
	mux.Handle("/api/0/verify-email/{token}/{$}", methodMux(map[string]http.Handler{
		http.MethodGet: publicTier(http.HandlerFunc(accountHandler.VerifyEmail)),
	}))
	mux.Handle("/api/0/api-tokens/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: publicTier(requireAuth(requireVerified(http.HandlerFunc(accountHandler.CreateAPIToken)))),
	}))

	chain := []func(http.Handler) http.Handler{
		middleware.SecurityHeaders(secure),
		middleware.CorrelationID(logger),
		middleware.Tracing,
		middleware.RequestLogging(logger),
		metrics.HTTPMiddleware,
		middleware.Authenticate(repo.Sessions(), usersService, repo.APIKeys(), repo.APITokens(), env),
	}
	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	return &Router{Handler: handler, RiverClient: riverClient}, nil
}

// valueCache keeps a typed nil *cache.Cache from sneaking into the
// tags service as a non-nil interface.
func valueCache(c *cache.Cache) tags.ValueCache {
	if c == nil {
		return nil
	}
	return c
}

func tagInvalidator(c *cache.Cache) events.TagCache {
	if c == nil {
		return nil
	}
	return c
}

type poolPinger struct {
	pool *pgxpool.Pool
}

func (p poolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func redisPinger(c *cache.Cache) handlers.Pinger {
	if c == nil {
		return nil
	}
	return c
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
