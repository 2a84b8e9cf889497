// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/capitalize-ai/sqlchat/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated subject.
	UserIDKey ContextKey = "user_id"
)

// Auth creates bearer token middleware. When enabled is false every request
// passes with the anonymous subject. Tokens are read from the Authorization
// header or, for EventSource clients that cannot set headers, the token
// query parameter.
func Auth(enabled bool, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				setRequestUser(r.Context(), auth.AnonymousSubject)
				ctx := context.WithValue(r.Context(), UserIDKey, auth.AnonymousSubject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			tokenString, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, "Not authenticated")
				return
			}

			claims, err := auth.Verify(tokenString, jwtSecret)
			if err != nil {
				writeAuthError(w, "Invalid or expired token")
				return
			}

			setRequestUser(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + detail + `"}`))
}

// GetUserID gets the authenticated subject from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
