package secretary

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelclaims"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
)

func newTestSecretary(t *testing.T, ttl time.Duration) *Secretary {
	t.Helper()
	sec, err := NewSecretaryService(&config.SecretConfig{SecretKey: "test-key", TokenTTL: ttl, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return sec
}

func TestPasswords(t *testing.T) {
	sec := newTestSecretary(t, time.Minute)
	hash, err := sec.HashPassword("s3cretpass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cretpass", hash)
	assert.True(t, sec.CheckPassword(hash, "s3cretpass"))
	assert.False(t, sec.CheckPassword(hash, "wrong"))
	assert.False(t, sec.CheckPassword("not-a-hash", "s3cretpass"))
}

func TestPasswordsBeyondBcryptLimit(t *testing.T) {
	sec := newTestSecretary(t, time.Minute)
	long := strings.Repeat("a", 127) + "1"
	hash, err := sec.HashPassword(long)
	require.NoError(t, err)
	assert.True(t, sec.CheckPassword(hash, long))
	// passwords sharing the first 72 bytes must still differ
	assert.False(t, sec.CheckPassword(hash, strings.Repeat("a", 127)+"2"))

	other := newTestSecretary(t, time.Minute)
	other.key = []byte("another-key")
	assert.False(t, other.CheckPassword(hash, long))
}

func TestTokenRoundTrip(t *testing.T) {
	sec := newTestSecretary(t, time.Minute)
	token, err := sec.NewToken(&modelprincipal.Principal{
		UserID:             "u-1",
		Username:           "alice",
		Role:               "trader",
		MustChangePassword: true,
	})
	require.NoError(t, err)

	claims, err := sec.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "trader", claims.Role)
	assert.True(t, claims.MustChangePassword)
}

func TestValidateTokenRejects(t *testing.T) {
	sec := newTestSecretary(t, -time.Minute)
	expired, err := sec.NewToken(&modelprincipal.Principal{UserID: "u-1", Role: "viewer"})
	require.NoError(t, err)
	_, err = sec.ValidateToken(expired)
	assert.Error(t, err)

	other := newTestSecretary(t, time.Minute)
	other.key = []byte("another-key")
	foreign, err := other.NewToken(&modelprincipal.Principal{UserID: "u-1", Role: "viewer"})
	require.NoError(t, err)
	_, err = newTestSecretary(t, time.Minute).ValidateToken(foreign)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &modelclaims.MyCustomClaims{UserID: "u-1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTestSecretary(t, time.Minute).ValidateToken(raw)
	assert.Error(t, err)
}

func TestNewAPIKey(t *testing.T) {
	sec := newTestSecretary(t, time.Minute)
	key, prefix, hash, err := sec.NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))
	assert.Len(t, key, len(APIKeyPrefix)+64)
	assert.Len(t, prefix, 12)
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.Equal(t, sec.HashAPIKey(key), hash)
	assert.Len(t, hash, 64)

	again, _, _, err := sec.NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, again)
}

func TestNewTemporaryPassword(t *testing.T) {
	sec := newTestSecretary(t, time.Minute)
	for i := 0; i < 20; i++ {
		pwd, err := sec.NewTemporaryPassword()
		require.NoError(t, err)
		require.Len(t, pwd, 16)
		assert.True(t, strings.IndexFunc(pwd, unicode.IsLetter) >= 0)
		assert.True(t, strings.IndexFunc(pwd, unicode.IsDigit) >= 0)
	}
}
