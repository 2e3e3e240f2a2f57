package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SessionValidator resolves a session token to a user id.
type SessionValidator func(ctx context.Context, token string) (string, error)

// WithSession gates protected routes behind session validation. When required
// is false (auth disabled by configuration) the handler runs with no user in
// the context and substitutes the placeholder identity itself.
func WithSession(required bool, validate SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}
			token := ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			userID, err := validate(r.Context(), token)
			if err != nil {
				logger.Warn("session validation failed", "error", err)
				http.Error(w, "invalid session", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), "user", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOptionalSession attaches the user id when a valid session token is
// present but never rejects the request. Used on the OAuth callback, where a
// session may or may not accompany the browser redirect.
func WithOptionalSession(validate SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := validate(r.Context(), token)
			if err != nil {
				logger.Debug("optional session not valid", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), "user", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ExtractBearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// SessionUserID returns the user id attached by the session middleware, or ""
// when the request carried no valid session.
func SessionUserID(r *http.Request) string {
	userID, _ := r.Context().Value("user").(string)
	return userID
}
