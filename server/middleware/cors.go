package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS adds CORS headers for the single-page app served behind the
// website origin. The method list covers the register route (PUT) and
// whatever the /api catch-all proxies.
func WithCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return func(h http.Handler) http.Handler {
		middleware := cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodPatch,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"*"},
			AllowCredentials: true,
		})
		return middleware.Handler(h)
	}
}
