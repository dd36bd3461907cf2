package middlewares

import (
	"net/http"

	"sevenquiz-backend/internal/rate"
)

// RateLimit rejects requests once limiter's sliding window is exhausted.
// This is an abuse guard on connection churn, not matchmaking policy
// (spec.md §1 Non-goals excludes the latter, not the former), so it is
// kept outside the domain error taxonomy entirely.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
