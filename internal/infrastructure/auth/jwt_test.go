package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTUtil_RoundTrip(t *testing.T) {
	ju := NewJWTUtil("HS256", "secret", "token")
	tokenStr, err := ju.Sign(&AppTokenClaims{
		UID:            "learner-1",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	})
	require.NoError(t, err)

	claims, err := ju.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "learner-1", claims.UID)
	assert.True(t, claims.TimeRemaining() > 0)
}

func TestJWTUtil_RejectsOtherSecretAndAlgorithm(t *testing.T) {
	tokenStr, err := NewJWTUtil("HS512", "secret", "token").Sign(&AppTokenClaims{UID: "learner-1"})
	require.NoError(t, err)

	_, err = NewJWTUtil("HS256", "secret", "token").Validate(tokenStr)
	assert.Error(t, err)

	tokenStr, err = NewJWTUtil("HS256", "other", "token").Sign(&AppTokenClaims{UID: "learner-1"})
	require.NoError(t, err)
	_, err = NewJWTUtil("HS256", "secret", "token").Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTUtil_ExtractToken(t *testing.T) {
	ju := NewJWTUtil("HS256", "secret", "token")
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	tokenStr, err := ju.ExtractToken(e.NewContext(req, httptest.NewRecorder()))
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", tokenStr)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer from-header")
	tokenStr, err = ju.ExtractToken(e.NewContext(req, httptest.NewRecorder()))
	require.NoError(t, err)
	assert.Equal(t, "from-header", tokenStr)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = ju.ExtractToken(e.NewContext(req, httptest.NewRecorder()))
	assert.Error(t, err)
}
