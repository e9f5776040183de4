package api

import (
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes attaches the full HTTP surface to mux and wraps it in the
// configured CORS policy. Keeping this separate from handlers.go means the
// full route surface is visible at a glance.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, corsOrigins []string) http.Handler {
	mux.HandleFunc("POST /analyze", h.Analyze)
	mux.HandleFunc("GET /status/{request_id}", h.Status)

	mux.HandleFunc("GET /api/requests", h.ListRequests)
	mux.HandleFunc("GET /api/requests/search", h.SearchRequests)
	mux.HandleFunc("GET /api/requests/{request_id}", h.GetRequest)
	mux.HandleFunc("GET /api/metrics", h.Metrics)

	mux.Handle("GET /metrics", promhttp.Handler())

	return withCORS(mux, corsOrigins)
}

// withCORS permits the configured browser origins, matching the allow-all
// methods/headers policy original_source's FastAPI app used for its Vite
// and CRA dev servers.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(allowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
