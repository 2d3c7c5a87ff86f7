package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FredZ6/cloud-project/pkg/config"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "ecom-auth"}
}

func signTestToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func baseClaims(subject string) Claims {
	return Claims{
		Roles: []string{"buyer"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "ecom-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	token := signTestToken(t, "test-secret", baseClaims("user-42"))

	claims, err := VerifyToken(testConfig(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID())
	assert.True(t, claims.HasRole("BUYER"))
	assert.False(t, claims.HasRole("admin"))
}

func TestVerifyTokenRejectsBadSignature(t *testing.T) {
	token := signTestToken(t, "other-secret", baseClaims("user-42"))

	_, err := VerifyToken(testConfig(), token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsWrongIssuer(t *testing.T) {
	claims := baseClaims("user-42")
	claims.Issuer = "someone-else"
	token := signTestToken(t, "test-secret", claims)

	_, err := VerifyToken(testConfig(), token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpiredToken(t *testing.T) {
	claims := baseClaims("user-42")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signTestToken(t, "test-secret", claims)

	_, err := VerifyToken(testConfig(), token)
	assert.Error(t, err)
}

func TestVerifyTokenRequiresSubject(t *testing.T) {
	token := signTestToken(t, "test-secret", baseClaims("   "))

	_, err := VerifyToken(testConfig(), token)
	assert.Error(t, err)
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("bearer abc"))
	assert.Equal(t, "abc", StripBearer("  Bearer   abc  "))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "", StripBearer(""))
}
