package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hallwayapps/browsergate/internal/ratelimit"
)

// RateLimitMiddleware creates a middleware that enforces per-tab rate limits
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tabID := getTabID(r)

			if tabID == "" {
				// No tab id in query or header, the handler validates the body
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(tabID) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.PerMinute()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)

				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded for tab",
				})
				return
			}

			tokens := limiter.Tokens(tabID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.PerMinute()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))

			next.ServeHTTP(w, r)
		})
	}
}

// getTabID extracts the tab ID from the request
func getTabID(r *http.Request) string {
	if tabID := r.URL.Query().Get("tabId"); tabID != "" {
		return tabID
	}
	return r.Header.Get("X-Tab-ID")
}
