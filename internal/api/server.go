// Package api provides the HTTP server the command layer (the chat
// frontend) talks to. It exposes the economy, the paid generation flow,
// and endpoint status; all rendering to end users happens upstream.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuna-network/yuna/internal/app/paidaction"
	"github.com/yuna-network/yuna/internal/dispatch"
	"github.com/yuna-network/yuna/internal/ledger"
)

// Server is the yuna HTTP API server.
type Server struct {
	ledger         *ledger.Ledger
	coordinator    *paidaction.Coordinator
	registry       *dispatch.Registry
	generationCost int64
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(l *ledger.Ledger, c *paidaction.Coordinator, r *dispatch.Registry, generationCost int64) *Server {
	return &Server{
		ledger:         l,
		coordinator:    c,
		registry:       r,
		generationCost: generationCost,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Economy endpoints
	r.Route("/api/economy", func(r chi.Router) {
		r.Get("/profile/{id}", s.handleProfile)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Post("/daily", s.handleDaily)
		r.Post("/transfer", s.handleTransfer)
		r.Post("/message-exp", s.handleMessageExp)
		r.Post("/game-reward", s.handleGameReward)
		r.Post("/grant-exp", s.handleGrantExp)
		r.Post("/adjust-balance", s.handleAdjustBalance)
	})

	// Generation endpoints
	r.Post("/api/generate", s.handleGenerate)
	r.Get("/api/generate/models", s.handleListModels)
	r.Get("/api/generate/endpoints", s.handleEndpoints)

	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
