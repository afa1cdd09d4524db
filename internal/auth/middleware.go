package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionCookie is the cookie carrying the session token set by the
// external login flow.
const SessionCookie = "sb_session"

// Context keys for authentication
type contextKey string

const (
	// SessionContextKey is the context key for the authenticated session
	SessionContextKey contextKey = "session"
)

// Session identifies an authenticated account on a request
type Session struct {
	AccountID string
	Email     string
}

// AuthMiddleware holds dependencies for authentication middleware
type AuthMiddleware struct {
	jwtService *JWTService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// OptionalAuth middleware sets the session if authenticated but continues if not
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			if claims, err := m.jwtService.Validate(token); err == nil {
				session := &Session{AccountID: claims.AccountID, Email: claims.Email}
				ctx := context.WithValue(r.Context(), SessionContextKey, session)
				r = r.WithContext(ctx)
			}
		}

		next.ServeHTTP(w, r)
	})
}

// GetSession retrieves the authenticated session from the context, or nil
func GetSession(ctx context.Context) *Session {
	if s, ok := ctx.Value(SessionContextKey).(*Session); ok {
		return s
	}
	return nil
}

// extractToken pulls a session token from the Authorization header or the
// session cookie, in that order.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}

	return ""
}
