// Package secretary provides methods for hashing secrets and issuing tokens.
package secretary

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
)

const (
	// APIKeyPrefix starts every issued API key.
	APIKeyPrefix    = "btk_"
	apiKeyBytes     = 32
	displayPrefix   = 12
	tempPasswordLen = 16
	letters         = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	digits          = "23456789"
)

// Secretary defines object structure and its attributes.
type Secretary struct {
	key        []byte
	ttl        time.Duration
	bcryptCost int
}

// NewSecretaryService initializes a secretary service.
func NewSecretaryService(c *config.SecretConfig) (*Secretary, error) {
	if c == nil {
		return nil, errors.New("nil secret config was found")
	}
	if c.SecretKey == "" {
		return nil, errors.New("empty secret key")
	}
	cost := c.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Secretary{
		key:        []byte(c.SecretKey),
		ttl:        c.TokenTTL,
		bcryptCost: cost,
	}, nil
}

// peppered keys the password with the secret and encodes the digest, keeping bcrypt input at 44 bytes
// whatever the password length.
func (s *Secretary) peppered(password string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(password))
	sum := mac.Sum(nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out
}

// HashPassword hashes a password with bcrypt.
func (s *Secretary) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(s.peppered(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a bcrypt hash.
func (s *Secretary) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), s.peppered(password)) == nil
}

// TokenTTL returns the lifetime of issued tokens.
func (s *Secretary) TokenTTL() time.Duration {
	return s.ttl
}

// NewToken issues a signed access token for a principal.
func (s *Secretary) NewToken(p *modelprincipal.Principal) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &modelclaims.MyCustomClaims{
		UserID:             p.UserID,
		Username:           p.Username,
		Role:               p.Role,
		MustChangePassword: p.MustChangePassword,
		StandardClaims: jwt.StandardClaims{
			Subject:   p.UserID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	})
	return token.SignedString(s.key)
}

// ValidateToken parses an access token and returns its claims.
func (s *Secretary) ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error) {
	token, err := jwt.ParseWithClaims(accessToken, &modelclaims.MyCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*modelclaims.MyCustomClaims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid access token")
}

// NewAPIKey generates a random API key along with its display prefix and lookup hash.
func (s *Secretary) NewAPIKey() (key, prefix, hash string, err error) {
	buf := make([]byte, apiKeyBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	key = APIKeyPrefix + hex.EncodeToString(buf)
	return key, key[:displayPrefix], s.HashAPIKey(key), nil
}

// HashAPIKey returns the hex SHA-256 digest of a presented key.
func (s *Secretary) HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NewTemporaryPassword generates a random password containing letters and digits.
func (s *Secretary) NewTemporaryPassword() (string, error) {
	alphabet := letters + digits
	out := make([]byte, tempPasswordLen)
	for i := range out {
		set := alphabet
		switch i {
		case 0:
			set = letters
		case 1:
			set = digits
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return "", err
		}
		out[i] = set[n.Int64()]
	}
	// move the guaranteed letter and digit away from the front
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}
