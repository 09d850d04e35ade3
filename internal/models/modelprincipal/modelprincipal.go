// Package modelprincipal describes the authenticated caller of a request.
package modelprincipal

import "context"

// Authentication methods.
const (
	MethodToken  = "token"
	MethodAPIKey = "api_key"
)

// Principal is the identity resolved from a bearer token or an API key.
type Principal struct {
	UserID             string
	Username           string
	Role               string
	MustChangePassword bool
	Method             string
	APIKeyID           string
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...string) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// Identity is the rate limiting identity of the principal.
func (p *Principal) Identity() string {
	if p.Method == MethodAPIKey && p.APIKeyID != "" {
		return "apikey:" + p.APIKeyID
	}
	return "user:" + p.UserID
}

type ctxKey struct{}

// NewContext stores p in ctx.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}
