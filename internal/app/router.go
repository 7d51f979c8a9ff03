// Package app wires configuration, adapters and usecases into a runnable
// HTTP service.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/talent-match-engine/internal/adapter/httpserver"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces.
// An empty input allows every origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Scoring endpoints share one rate limit bucket per client IP. The
	// streaming endpoint stays outside the timeout middleware.
	r.Group(func(sr chi.Router) {
		sr.Use(httpserver.TimeoutMiddleware(30 * time.Second))
		sr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		sr.Get("/v1/score", srv.GetScore())
		sr.Post("/v1/rank", srv.Rank())
		sr.Post("/v1/invalidate", srv.Invalidate())
	})
	r.Get("/v1/talents/{id}/analysis/stream", srv.AnalyzeProfileStream())
	r.Get("/v1/queue/stats", srv.QueueStats())

	r.Get("/healthz", srv.Healthz())
	r.Get("/readyz", srv.Readyz())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
