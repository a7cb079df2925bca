package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if ok {
			w.Header().Set("X-Subject", p.Subject)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("secret"))

	token, err := m.GenerateToken("ui")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ui", claims.Subject)
	assert.Equal(t, "phi3chat", claims.Issuer)

	exp, err := m.TokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("secret"))

	_, err := m.GenerateToken("")
	assert.Error(t, err)

	expired, err := m.GenerateTokenWithExpiry("ui", -time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.True(t, errors.Is(err, ErrExpiredToken))

	other := NewJWTManager(DefaultJWTConfig("other-secret"))
	foreign, err := other.GenerateToken("ui")
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	cfg := DefaultJWTConfig("secret")
	cfg.Issuer = "someone-else"
	wrongIssuer, err := NewJWTManager(cfg).GenerateToken("ui")
	require.NoError(t, err)
	_, err = m.ValidateToken(wrongIssuer)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ui", Issuer: "phi3chat"},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestMiddleware_Disabled(t *testing.T) {
	a := NewAuthenticator("", nil, nil)
	assert.False(t, a.Enabled())

	rec := httptest.NewRecorder()
	a.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig("secret"))
	token, err := m.GenerateToken("ui")
	require.NoError(t, err)

	a := NewAuthenticator("k3y", m, nil)
	h := a.Middleware(okHandler())

	tests := []struct {
		name    string
		headers map[string]string
		code    int
		subject string
	}{
		{"missing", nil, http.StatusUnauthorized, ""},
		{"valid key", map[string]string{APIKeyHeader: "k3y"}, http.StatusNoContent, "api-key"},
		{"wrong key", map[string]string{APIKeyHeader: "nope"}, http.StatusUnauthorized, ""},
		{"valid bearer", map[string]string{"Authorization": "Bearer " + token}, http.StatusNoContent, "ui"},
		{"bad bearer", map[string]string{"Authorization": "Bearer garbage"}, http.StatusUnauthorized, ""},
		{"basic scheme", map[string]string{"Authorization": "Basic dTpw"}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.subject, rec.Header().Get("X-Subject"))
			if tt.code == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)
			}
		})
	}
}

func TestMiddleware_BearerWithoutJWT(t *testing.T) {
	a := NewAuthenticator("k3y", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	a.Middleware(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
