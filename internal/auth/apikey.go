// Package auth provides HTTP middleware for API key and JWT bearer authentication.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the header carrying a static API key.
	APIKeyHeader = "X-API-Key"

	bearerPrefix = "Bearer "

	principalContextKey contextKey = "principal"
)

// Principal identifies an authenticated caller.
type Principal struct {
	Subject string
	Method  string // "api_key" or "jwt"
}

// Authenticator validates requests against a static API key and/or JWTs.
// With neither configured, every request passes.
type Authenticator struct {
	apiKey string
	jwt    *JWTManager
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator. An empty apiKey disables key
// checks; a nil jwt disables bearer tokens.
func NewAuthenticator(apiKey string, jwt *JWTManager, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		apiKey: apiKey,
		jwt:    jwt,
		logger: logger,
	}
}

// Enabled reports whether any credential is required.
func (a *Authenticator) Enabled() bool {
	return a.apiKey != "" || a.jwt != nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// Principal in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		principal, reason := a.authenticate(r)
		if principal == nil {
			a.logger.Warn("authentication failed",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"reason", reason,
			)
			unauthorized(w, reason)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, string) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		if a.apiKey == "" {
			return nil, "API key authentication not configured"
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
			return nil, "invalid API key"
		}
		return &Principal{Subject: "api-key", Method: "api_key"}, ""
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "missing credentials"
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, "unsupported authorization scheme"
	}
	if a.jwt == nil {
		return nil, "bearer authentication not configured"
	}

	claims, err := a.jwt.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
	if err != nil {
		return nil, err.Error()
	}
	return &Principal{Subject: claims.Subject, Method: "jwt"}, ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="phi3chat"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"kind":    "unauthenticated",
			"message": message,
		},
	})
}

// PrincipalFromContext extracts the authenticated caller from context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
