package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/handlers"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/middleware"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/ratelimit"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/processor"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/secretary/v1/secretary"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/insqlite"
)

const adminPassword = "changeme123"

type noRates struct{}

func (noRates) Sync(_ context.Context, codes []string) []modelqueue.RateResult {
	results := make([]modelqueue.RateResult, 0, len(codes))
	for _, code := range codes {
		results = append(results, modelqueue.RateResult{CurrencyCode: code, Err: context.Canceled})
	}
	return results
}

func newTestRouter(t *testing.T, authRule string, trustedProxies ...string) http.Handler {
	t.Helper()
	log := zerolog.Nop()
	ctx := context.Background()
	st, err := insqlite.InitStorage(ctx, ":memory:", &log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cfg := &config.Config{
		ServerConfig: &config.ServerConfig{
			RequestTimeout: 2 * time.Second,
			AllowedOrigins: []string{"*"},
			TrustedProxies: trustedProxies,
		},
		SecretConfig: &config.SecretConfig{
			SecretKey:     "test-secret",
			TokenTTL:      time.Hour,
			BcryptCost:    bcrypt.MinCost,
			AdminUsername: "admin",
			AdminPassword: adminPassword,
			AdminEmail:    "admin@example.com",
		},
		QueueConfig: &config.QueueConfig{WorkerNumber: 1, BaseCurrency: "USD"},
		LimiterConfig: &config.LimiterConfig{
			Enabled:     true,
			DefaultRule: "100/minute",
			AuthRule:    authRule,
			WriteRule:   "30/minute",
		},
	}
	sec, err := secretary.NewSecretaryService(cfg.SecretConfig)
	require.NoError(t, err)
	proc, err := processor.InitService(st, sec, noRates{}, cfg, &log)
	require.NoError(t, err)
	require.NoError(t, proc.EnsureAdmin(ctx))
	require.NoError(t, proc.SeedCurrencies(ctx))

	rules, err := ratelimit.ParseRules(cfg.LimiterConfig.DefaultRule, cfg.LimiterConfig.AuthRule, cfg.LimiterConfig.WriteRule)
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), &log)
	h, err := handlers.InitHandlers(proc, cfg.ServerConfig, limiter, &log)
	require.NoError(t, err)
	authn, err := middleware.NewAuthenticator(proc, &log)
	require.NoError(t, err)
	router, err := NewRouter(h, authn, middleware.NewRateLimiter(limiter, rules, &log), cfg.ServerConfig, &log)
	require.NoError(t, err)
	return router
}

type call struct {
	method string
	path   string
	token  string
	apiKey string
	header map[string]string
	body   interface{}
}

func do(t *testing.T, router http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	}
	for name, value := range c.header {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) modeldto.ErrorResponse {
	t.Helper()
	var body modeldto.ErrorResponse
	decode(t, rec, &body)
	return body
}

// login signs in and replaces the password when a change is pending.
func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()
	rec := do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: modeldto.Credentials{Username: username, Password: password}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token modeldto.Token
	decode(t, rec, &token)
	if !token.MustChangePassword {
		return token.AccessToken
	}
	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/change-password",
		token:  token.AccessToken,
		body:   modeldto.ChangePasswordRequest{CurrentPassword: password, NewPassword: password + "x9"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &token)
	return token.AccessToken
}

func createUser(t *testing.T, router http.Handler, adminToken, username, role string) string {
	t.Helper()
	rec := do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/users",
		token:  adminToken,
		body:   modeldto.CreateUserRequest{Username: username, Email: username + "@example.com", Role: role, Password: "password123"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return login(t, router, username, "password123")
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, "5/minute")

	rec := do(t, router, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)
	var health modeldto.Health
	decode(t, rec, &health)
	assert.Equal(t, modeldto.Health{Status: "ok", Database: "ok", RateLimiter: "memory"}, health)

	rec = do(t, router, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "balancetracker_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	router := newTestRouter(t, "50/minute")

	rec := do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication required", errorOf(t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Basic YWRtaW46YWRtaW4=")
	basic := httptest.NewRecorder()
	router.ServeHTTP(basic, req)
	assert.Equal(t, http.StatusUnauthorized, basic.Code)
	assert.Equal(t, "malformed authorization header", errorOf(t, basic).Error)

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: modeldto.Credentials{Username: "admin", Password: "wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid username or password", errorOf(t, rec).Error)

	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"username": "admin", "password": adminPassword, "extra": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"username": "admin"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", errorOf(t, rec).Fields["password"])

	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: modeldto.Credentials{Username: "admin", Password: adminPassword}})
	require.Equal(t, http.StatusOK, rec.Code)
	var token modeldto.Token
	decode(t, rec, &token)
	assert.True(t, token.MustChangePassword)
	assert.Equal(t, "bearer", token.TokenType)

	// only the profile and the password change are reachable before the password is replaced
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/currencies", token: token.AccessToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "password change required", errorOf(t, rec).Error)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/me", token: token.AccessToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/register", body: modeldto.RegisterRequest{Username: "eve", Email: "eve@example.com", Password: "password123"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	fresh := login(t, router, "admin", adminPassword)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/currencies?active=true", token: fresh})
	require.Equal(t, http.StatusOK, rec.Code)
	var currencies []modeldto.Currency
	decode(t, rec, &currencies)
	assert.Len(t, currencies, 5)
}

func TestRolesAndLedger(t *testing.T) {
	router := newTestRouter(t, "50/minute")
	admin := login(t, router, "admin", adminPassword)
	trader := createUser(t, router, admin, "trader", "trader")
	viewer := createUser(t, router, admin, "viewer", "viewer")

	rec := do(t, router, call{method: http.MethodGet, path: "/api/v1/users", token: trader})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient permissions", errorOf(t, rec).Error)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/users?role=trader", token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	var users []modeldto.User
	decode(t, rec, &users)
	require.Len(t, users, 1)
	traderID := users[0].ID

	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/users",
		token:  admin,
		body:   modeldto.CreateUserRequest{Username: "trader", Email: "other@example.com", Role: "trader"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	deposit := modeldto.TransactionRequest{Type: "deposit", Currency: "USD", Amount: decimal.NewFromInt(100)}
	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/transactions", token: viewer, body: deposit})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/transactions", token: trader, body: deposit})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	var tx modeldto.Transaction
	decode(t, rec, &tx)

	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/transactions",
		token:  trader,
		body:   modeldto.TransactionRequest{Type: "withdrawal", Currency: "USD", Amount: decimal.NewFromInt(500)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient USD balance", errorOf(t, rec).Error)

	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/transactions",
		token:  trader,
		body:   map[string]string{"type": "refund", "currency": "USD", "amount": "1"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec).Fields, "type")

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances/usd", token: trader})
	require.Equal(t, http.StatusOK, rec.Code)
	var balance modeldto.Balance
	decode(t, rec, &balance)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(100)))

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances/total?currency=EUR", token: trader})
	require.Equal(t, http.StatusOK, rec.Code)
	var total modeldto.BalanceTotal
	decode(t, rec, &total)
	assert.Equal(t, "EUR", total.Currency)
	assert.True(t, total.Total.Equal(decimal.RequireFromString("92.59")), total.Total.String())

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances?user_id=" + traderID, token: viewer})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances?user_id=" + traderID, token: admin})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/transactions/" + tx.ID, token: viewer})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/transactions/" + uuid.New().String(), token: admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/transactions?type=deposit&limit=10", token: trader})
	require.Equal(t, http.StatusOK, rec.Code)
	var transactions []modeldto.Transaction
	decode(t, rec, &transactions)
	assert.Len(t, transactions, 1)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/transactions?from=yesterday", token: trader})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/admin/balances/adjust",
		token:  trader,
		body:   modeldto.AdjustBalanceRequest{UserID: traderID, Currency: "USD", Amount: decimal.NewFromInt(-10)},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/admin/balances/adjust",
		token:  admin,
		body:   modeldto.AdjustBalanceRequest{UserID: traderID, Currency: "USD", Amount: decimal.NewFromInt(-10)},
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/admin/balances/adjust",
		token:  admin,
		body:   modeldto.AdjustBalanceRequest{UserID: traderID, Currency: "XYZ", Amount: decimal.NewFromInt(10)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "currency XYZ is not supported", errorOf(t, rec).Error)

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/admin/stats", token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	var stats modeldto.Stats
	decode(t, rec, &stats)
	assert.Equal(t, int64(1), stats.TransactionsByType["deposit"])
	assert.True(t, stats.TotalsByCurrency["USD"].Equal(decimal.NewFromInt(90)))

	rec = do(t, router, call{method: http.MethodDelete, path: "/api/v1/users/" + traderID, token: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances", token: trader})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeys(t *testing.T) {
	router := newTestRouter(t, "50/minute")
	admin := login(t, router, "admin", adminPassword)
	trader := createUser(t, router, admin, "trader", "trader")

	rec := do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/api-keys", token: trader, body: modeldto.APIKeyRequest{Name: "bot"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var key modeldto.CreatedAPIKey
	decode(t, rec, &key)
	require.NotEmpty(t, key.Key)

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances", apiKey: key.Key})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/api-keys", apiKey: key.Key})
	require.Equal(t, http.StatusOK, rec.Code)
	var keys []modeldto.APIKey
	decode(t, rec, &keys)
	assert.Len(t, keys, 1)

	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/me", apiKey: key.Key})
	require.Equal(t, http.StatusOK, rec.Code)
	var me modeldto.User
	decode(t, rec, &me)

	// a password reset locks API keys of the user out until the new password is set
	rec = do(t, router, call{method: http.MethodPost, path: "/api/v1/users/" + me.ID + "/reset-password", token: admin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reset modeldto.PasswordReset
	decode(t, rec, &reset)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances", apiKey: key.Key})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "password change required", errorOf(t, rec).Error)
	trader = login(t, router, "trader", reset.TemporaryPassword)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances", apiKey: key.Key})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, call{method: http.MethodDelete, path: "/api/v1/auth/api-keys/" + key.ID, token: trader})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/balances", apiKey: key.Key})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key was revoked", errorOf(t, rec).Error)
}

func TestRateLimiting(t *testing.T) {
	router := newTestRouter(t, "3/minute")
	bad := modeldto.Credentials{Username: "admin", Password: "wrong"}
	for i := 0; i < 3; i++ {
		rec := do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: bad})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(t, router, call{method: http.MethodPost, path: "/api/v1/auth/login", body: bad})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded: 3 per 1 minute", errorOf(t, rec).Error)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, "5/minute")
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLongPasswords(t *testing.T) {
	router := newTestRouter(t, "50/minute")
	admin := login(t, router, "admin", adminPassword)
	long := strings.Repeat("p", 79) + "1"

	rec := do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/users",
		token:  admin,
		body:   modeldto.CreateUserRequest{Username: "carol", Email: "carol@example.com", Role: "viewer", Password: long},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// login replaces the temporary password with an 82 character one
	viewer := login(t, router, "carol", long)
	rec = do(t, router, call{method: http.MethodGet, path: "/api/v1/auth/me", token: viewer})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/change-password",
		token:  viewer,
		body:   modeldto.ChangePasswordRequest{CurrentPassword: long + "x9", NewPassword: strings.Repeat("q", 99) + "1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   modeldto.Credentials{Username: "carol", Password: strings.Repeat("q", 99) + "2"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitingIgnoresSpoofedForwardedFor(t *testing.T) {
	router := newTestRouter(t, "3/minute")
	bad := modeldto.Credentials{Username: "admin", Password: "wrong"}
	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		rec := do(t, router, call{
			method: http.MethodPost,
			path:   "/api/v1/auth/login",
			header: map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1), "X-Real-IP": fmt.Sprintf("198.51.100.%d", i+1)},
			body:   bad,
		})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{401, 401, 401, 429, 429, 429}, codes)
}

func TestRateLimitingBehindTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1
	router := newTestRouter(t, "3/minute", "192.0.2.0/24")
	bad := modeldto.Credentials{Username: "admin", Password: "wrong"}
	for i := 0; i < 5; i++ {
		rec := do(t, router, call{
			method: http.MethodPost,
			path:   "/api/v1/auth/login",
			header: map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1)},
			body:   bad,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := do(t, router, call{
			method: http.MethodPost,
			path:   "/api/v1/auth/login",
			// the left hop is client supplied, the proxy appended the real address
			header: map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d, 198.51.100.7", i+1)},
			body:   bad,
		})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{401, 401, 401, 429}, codes)
}
