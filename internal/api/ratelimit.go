package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/parishrecords/ocrmapper/internal/http/response"
	"github.com/parishrecords/ocrmapper/internal/ratelimit"
)

// RateLimitMiddleware rejects clients that exceed their request budget with
// 429 Too Many Requests. It runs after middleware.RealIP, so RemoteAddr
// already holds the client address.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded", "ip", key, "path", r.URL.Path)
				response.TooManyRequests(w, "Too many requests. Please try again later.", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr when there is one.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
