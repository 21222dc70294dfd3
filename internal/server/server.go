package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rezamarzban/llama-client/internal/config"
	"github.com/rezamarzban/llama-client/internal/storage"
	"github.com/rezamarzban/llama-client/internal/tools"
)

// Server is the HTTP front end: session CRUD, chat over SSE or WebSocket,
// tool inspection, and runtime configuration.
type Server struct {
	mu       sync.RWMutex // guards cfg
	cfg      *config.Config
	store    storage.Store
	registry *tools.Registry
	sessions *SessionManager
	router   chi.Router
	http     *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, store storage.Store, registry *tools.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		sessions: NewSessionManager(),
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// config returns the current configuration snapshot. Updates swap the whole
// value, so a snapshot stays consistent for the duration of one request.
func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) setConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/clear", s.handleClearSession)

		r.Get("/sessions/{id}/messages", s.handleGetMessages)
		r.Post("/sessions/{id}/messages", s.handleSendMessage)

		// Streaming endpoints set their own content types.
		r.Get("/sessions/{id}/ws", s.handleWebSocket)
		r.Post("/sessions/{id}/chat", s.handleChatSSE)

		r.Get("/sessions/{id}/tool-log", s.handleGetToolLog)
		r.Delete("/sessions/{id}/tool-log", s.handleClearToolLog)

		r.Get("/tools", s.handleListTools)

		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handleUpdateConfig)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Info().Str("addr", "http://localhost"+addr).Msg("server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
