// Package dashboard serves a JSON status API over the attempt log.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/quaxel/eodstrangle/internal/storage"
)

// Server exposes pipeline status endpoints.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	addr      string
	authToken string
	startedAt time.Time
}

// Config holds server settings.
type Config struct {
	Addr      string
	AuthToken string
}

// NewServer creates a dashboard server over the attempt log.
func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/attempts", s.handleAttempts)
	s.router.Get("/api/attempts/{symbol}", s.handleAttemptsForSymbol)
	s.router.Get("/api/summary", s.handleSummary)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start runs the server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleAttempts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.Attempts())
}

func (s *Server) handleAttemptsForSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	s.writeJSON(w, s.storage.AttemptsForSymbol(symbol))
}

// summaryView aggregates the attempt log per state.
type summaryView struct {
	Total       int            `json:"total"`
	ByState     map[string]int `json:"by_state"`
	BySymbol    map[string]int `json:"by_symbol"`
	LastAttempt *time.Time     `json:"last_attempt,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	attempts := s.storage.Attempts()
	view := summaryView{
		Total:    len(attempts),
		ByState:  make(map[string]int),
		BySymbol: make(map[string]int),
	}
	for _, a := range attempts {
		view.ByState[a.State]++
		view.BySymbol[a.Symbol]++
	}
	if len(attempts) > 0 {
		last := attempts[len(attempts)-1].CreatedAt
		view.LastAttempt = &last
	}
	s.writeJSON(w, view)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
