// Package router wires the HTTP surface: health, Prometheus metrics
// and the search endpoint, trimmed down to the RAG search API this
// repo actually serves.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragcore/internal/handler"
	"github.com/connexus-ai/ragcore/internal/middleware"
)

// Dependencies holds everything the router needs to wire routes.
type Dependencies struct {
	DB          handler.DBPinger
	Searcher    handler.Searcher
	Version     string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry
	RateLimiter *middleware.RateLimiter
	FrontendURL string
}

// New creates and configures the Chi router.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}
	if deps.FrontendURL != "" {
		r.Use(middleware.CORS(deps.FrontendURL))
	}

	r.Get("/healthz", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimit(deps.RateLimiter))
		}
		r.With(middleware.Timeout(30 * time.Second)).Post("/v1/search", handler.Search(deps.Searcher))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "route not found"})
	})

	return r
}
