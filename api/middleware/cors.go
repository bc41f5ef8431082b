package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/samber/lo"
)

// CORS lets the storefront origins call the public API from the browser.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := lo.Compact(lo.Map(origins, func(o string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(o), "/")
	}))
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
