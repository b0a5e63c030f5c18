package middleware

import (
	"context"
	"net/http"
	"strings"

	"notesync-engine/pkg/response"
	"notesync-engine/pkg/token"
)

type contextKey string

const SubjectKey contextKey = "subject"

// AuthMiddleware validates the Bearer service token on control API requests
// and stores the token subject in the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			subject, err := token.Validate(parts[1], secret)
			if err != nil {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the authenticated token subject, or "" when the request
// did not pass through AuthMiddleware.
func GetSubject(r *http.Request) string {
	if subject, ok := r.Context().Value(SubjectKey).(string); ok {
		return subject
	}
	return ""
}
