package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmyurl/loans-sub000/internal/config"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "officer-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authHandler(cfg config.AuthConfig) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return AuthMiddleware(cfg, slog.Default())(next)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	handler := authHandler(config.AuthConfig{Enabled: true, JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/loans/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	handler := authHandler(config.AuthConfig{Enabled: true, JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/loans/1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized")
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	handler := authHandler(config.AuthConfig{Enabled: true, JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/loans/1", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "another-secret"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	handler := authHandler(config.AuthConfig{Enabled: true, JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/loans/1", nil)
	req.Header.Set("Authorization", "Token abc123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	handler := authHandler(config.AuthConfig{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/loans/1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
