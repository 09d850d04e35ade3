// Package secretary provides credential primitives.
package secretary

import (
	"time"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
)

// Secretary defines a set of methods for types implementing Secretary.
type Secretary interface {
	HashPassword(password string) (string, error)
	CheckPassword(hash, password string) bool
	NewToken(p *modelprincipal.Principal) (string, error)
	ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error)
	TokenTTL() time.Duration
	NewAPIKey() (key, prefix, hash string, err error)
	HashAPIKey(key string) string
	NewTemporaryPassword() (string, error)
}
