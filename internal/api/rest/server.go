// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/handlers"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/middleware"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/metrics"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/ratelimit"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/broker/v1/broker"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/processor"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/secretary/v1/secretary"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/inpsql"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/insqlite"
)

// InitStorage opens the storage selected by the DSN scheme.
func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger, wg *sync.WaitGroup) (storage.Storage, error) {
	driver, conn, err := cfg.Driver()
	if err != nil {
		return nil, err
	}
	switch driver {
	case config.DriverPostgres:
		st, err := inpsql.InitStorage(ctx, conn, log, wg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := insqlite.InitStorage(ctx, conn, log, wg)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %s", driver)
}

// InitLimiter builds the rate limiter, or returns nil when rate limiting is disabled.
func InitLimiter(ctx context.Context, cfg *config.LimiterConfig, log *zerolog.Logger, wg *sync.WaitGroup) (*ratelimit.Limiter, *ratelimit.Rules, error) {
	if !cfg.Enabled {
		log.Warn().Msg("rate limiting is disabled")
		return nil, nil, nil
	}
	rules, err := ratelimit.ParseRules(cfg.DefaultRule, cfg.AuthRule, cfg.WriteRule)
	if err != nil {
		return nil, nil, err
	}
	store := ratelimit.NewStore(ctx, cfg.RedisURL, log)
	if closer, ok := store.(interface{ Close() error }); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			if err := closer.Close(); err != nil {
				log.Error().Err(err).Msg("closing redis connection failed")
			}
		}()
	}
	return ratelimit.NewLimiter(store, log), rules, nil
}

// InitServer returns a http.Server object ready to be listening and serving.
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, err error) {
	// initialize storage
	st, err := InitStorage(ctx, cfg.StorageConfig, log, wg)
	if err != nil {
		return nil, err
	}

	//initialize secretary
	secretaryService, err := secretary.NewSecretaryService(cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize rates client and broker
	ratesClient := client.InitClient(cfg.ServerConfig, log)
	brokerService, err := broker.InitBroker(ctx, ratesClient, cfg.QueueConfig, log, wg)
	if err != nil {
		return nil, err
	}

	// initialize main service
	mainService, err := processor.InitService(st, secretaryService, brokerService, cfg, log)
	if err != nil {
		return nil, err
	}
	if err = mainService.EnsureAdmin(ctx); err != nil {
		return nil, err
	}
	if err = mainService.SeedCurrencies(ctx); err != nil {
		return nil, err
	}
	if cfg.QueueConfig.SyncInterval > 0 {
		brokerService.ListenAndProcess(cfg.QueueConfig.SyncInterval, func(ctx context.Context) {
			if _, err := mainService.SyncRates(ctx); err != nil {
				log.Error().Err(err).Msg("periodic exchange rate synchronization failed")
			}
		})
	}

	// initialize rate limiter
	limiter, rules, err := InitLimiter(ctx, cfg.LimiterConfig, log, wg)
	if err != nil {
		return nil, err
	}
	var limiterStatus handlers.StatusReporter
	if limiter != nil {
		limiterStatus = limiter
	}

	// initialize handlers
	urlHandler, err := handlers.InitHandlers(mainService, cfg.ServerConfig, limiterStatus, log)
	if err != nil {
		return nil, err
	}
	authenticator, err := middleware.NewAuthenticator(mainService, log)
	if err != nil {
		return nil, err
	}
	rateLimiter := middleware.NewRateLimiter(limiter, rules, log)

	router, err := NewRouter(urlHandler, authenticator, rateLimiter, cfg.ServerConfig, log)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:         cfg.ServerConfig.ServerAddress,
		Handler:      router,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}

// NewRouter sets routing.
func NewRouter(h *handlers.Handler, authn *middleware.Authenticator, rl *middleware.RateLimiter, cfg *config.ServerConfig, log *zerolog.Logger) (http.Handler, error) {
	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	// forwarded addresses are only taken from trusted proxies
	r.Use(middleware.ClientIP(trustedProxies))
	r.Use(middleware.AccessLog(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HandleHealth())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// login and registration are limited per client address
		r.Group(func(r chi.Router) {
			r.Use(rl.Auth())
			r.Post("/auth/login", h.HandleLogin())
			r.Post("/auth/register", h.HandleRegister())
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)
			r.Use(rl.Default())
			// reachable while a password change is pending
			r.Get("/auth/me", h.HandleMe())
			r.Post("/auth/change-password", h.HandleChangePassword())

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePasswordChanged)
				r.Post("/auth/api-keys", h.HandleCreateAPIKey())
				r.Get("/auth/api-keys", h.HandleListAPIKeys())
				r.Delete("/auth/api-keys/{id}", h.HandleRevokeAPIKey())

				r.Get("/users/{id}", h.HandleGetUser())
				r.Get("/currencies", h.HandleListCurrencies())
				r.Get("/currencies/{code}", h.HandleGetCurrency())
				r.Get("/balances", h.HandleListBalances())
				r.Get("/balances/total", h.HandleGetTotal())
				r.Get("/balances/{currency}", h.HandleGetBalance())
				r.Get("/transactions", h.HandleListTransactions())
				r.Get("/transactions/{id}", h.HandleGetTransaction())
				r.With(middleware.RequireRoles(modelstorage.RoleAdmin, modelstorage.RoleTrader), rl.Write()).
					Post("/transactions", h.HandleCreateTransaction())

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRoles(modelstorage.RoleAdmin))
					r.Get("/users", h.HandleListUsers())
					r.Post("/users", h.HandleCreateUser())
					r.Patch("/users/{id}", h.HandleUpdateUser())
					r.Delete("/users/{id}", h.HandleDeleteUser())
					r.Post("/users/{id}/reset-password", h.HandleResetPassword())
					r.Post("/currencies", h.HandleCreateCurrency())
					r.Patch("/currencies/{code}", h.HandleUpdateCurrency())
					r.Post("/currencies/sync", h.HandleSyncRates())
					r.With(rl.Write()).Post("/admin/balances/adjust", h.HandleAdjustBalance())
					r.Get("/admin/stats", h.HandleStats())
				})
			})
		})
	})
	return r, nil
}
