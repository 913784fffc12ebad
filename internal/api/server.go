package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hallwayapps/browsergate/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	// Session lifecycle
	api.HandleFunc("/session", h.CreateSession).Methods("POST")
	api.HandleFunc("/session", h.GetSession).Methods("GET")
	api.HandleFunc("/session", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/session/ws", h.DebugWebSocket).Methods("GET")

	// Action/state dispatch (rate limited per tab)
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter))
	limited.HandleFunc("/action", h.ExecuteAction).Methods("POST", "OPTIONS")
	limited.HandleFunc("/state", h.GetState).Methods("GET")

	// Diagnostics (not rate limited - frequent polling)
	api.HandleFunc("/click-events", h.GetClickEvents).Methods("GET")
	api.HandleFunc("/live-url", h.GetLiveURL).Methods("GET")
	api.HandleFunc("/logs", h.GetLogs).Methods("GET")
	api.HandleFunc("/logs/stream", h.StreamLogs).Methods("GET")
	api.HandleFunc("/health", h.Health).Methods("GET")

	r.Use(corsMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
