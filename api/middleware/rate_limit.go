package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/ratelimit"
)

// RateLimit applies limiter per client IP within scope. Requests rejected by
// the limiter get 429 with Retry-After.
func RateLimit(scope string, limiter ratelimit.Limiter, logg *logger.Logger) func(http.Handler) http.Handler {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = "public"
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)

			decision, err := limiter.Allow(ctx, scope+":"+ip)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retryAfter := decision.RetryAfterSeconds()
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"scope":       scope,
						"ip":          ip,
						"limit":       decision.Limit,
						"retry_after": retryAfter,
					}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
					WithDetails(map[string]any{"retryAfter": retryAfter}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
