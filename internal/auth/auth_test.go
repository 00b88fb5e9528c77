package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenExpiry(t *testing.T) {
	iss := NewIssuer("test-secret", "timebox")

	tok, err := iss.Access("test-uid")
	require.NoError(t, err)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "test-uid", claims.UserID)
	assert.Equal(t, "timebox", claims.Issuer)

	diff := time.Until(claims.ExpiresAt.Time)
	assert.True(t, diff > 14*time.Minute && diff <= 15*time.Minute, "expected ~15min expiry, got %v", diff)
}

func TestExpiredTokenRejected(t *testing.T) {
	iss := NewIssuer("test-secret", "timebox")
	tok, err := iss.Access("uid")
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(AccessTTL + time.Minute) }
	_, err = iss.Parse(tok)
	assert.Error(t, err)
}

func TestAlgorithmConfusion(t *testing.T) {
	iss := NewIssuer("test-secret", "timebox")

	tok, _ := iss.Access("uid")
	_, err := iss.Parse(tok)
	require.NoError(t, err)

	_, err = NewIssuer("wrong-secret", "timebox").Parse(tok)
	assert.Error(t, err, "wrong secret")

	_, err = iss.Parse("not.a.token")
	assert.Error(t, err, "garbage token")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "uid"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(raw)
	assert.Error(t, err, "alg none")
}

func TestRefreshTokenGeneration(t *testing.T) {
	raw, hash, err := GenerateRefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64) // 32 bytes hex
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashRefreshToken(raw))

	raw2, _, err := GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("testpass123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "testpass123"))
	assert.False(t, CheckPassword(hash, "wrongpassword"))
}
