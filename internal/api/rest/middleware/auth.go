// Package middleware provides various middleware functionality.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	handlersErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/response"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
)

// APIKeyHeader carries API keys.
const APIKeyHeader = "X-API-Key"

// Authenticator sets object structure.
type Authenticator struct {
	auth processor.Auth
	log  *zerolog.Logger
}

// NewAuthenticator initializes a new authentication handler.
func NewAuthenticator(auth processor.Auth, log *zerolog.Logger) (*Authenticator, error) {
	if auth == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil auth service was passed to authenticator initializer"}
	}
	return &Authenticator{auth: auth, log: log}, nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	response.Error(w, http.StatusUnauthorized, msg, nil)
}

// Authenticate resolves the caller from a bearer token or an API key and stores it in the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p   *modelprincipal.Principal
			err error
		)
		if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
			p, err = a.auth.AuthenticateAPIKey(r.Context(), key)
		} else {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "authentication required")
				return
			}
			scheme, token, found := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				unauthorized(w, "malformed authorization header")
				return
			}
			p, err = a.auth.AuthenticateToken(r.Context(), token)
		}
		if err != nil {
			var unauthorizedError *serviceErrors.UnauthorizedError
			if errors.As(err, &unauthorizedError) {
				unauthorized(w, unauthorizedError.Msg)
				return
			}
			a.log.Error().Err(err).Msg("authentication failed")
			response.Error(w, http.StatusInternalServerError, "internal server error", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(modelprincipal.NewContext(r.Context(), p)))
	})
}

// RequirePasswordChanged blocks callers that still have to replace a temporary password.
func RequirePasswordChanged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := modelprincipal.FromContext(r.Context())
		if !ok {
			unauthorized(w, "authentication required")
			return
		}
		if p.MustChangePassword {
			response.Error(w, http.StatusForbidden, (&serviceErrors.PasswordChangeRequiredError{}).Error(), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles lets through callers holding one of roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := modelprincipal.FromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if !p.HasRole(roles...) {
				response.Error(w, http.StatusForbidden, "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
