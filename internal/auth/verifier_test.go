package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret")
	token, err := v.Sign(Identity{UserID: "u1", Email: "a@acme.io", UserType: "company"}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Email: "a@acme.io", UserType: "company"}, id)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier("secret")
	other := NewJWTVerifier("other")

	foreign, err := other.Sign(Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	expired, err := v.Sign(Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not-a-jwt",
		"foreign": foreign,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u9",
		"email": "x@y.z",
		"exp":   time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := NewJWTVerifier("secret").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
}

func TestVerifyRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "x@y.z"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("bearer ")
	assert.False(t, ok)
}
