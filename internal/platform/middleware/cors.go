package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS returns a middleware for browser clients of the account API. With no
// origins, or with "*", any origin is allowed. Credentials are never allowed:
// account routes authenticate with bearer tokens, not cookies.
func CORS(origins ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-Id",
			"traceparent",
		},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
