package api

import (
	"log/slog"
	"net/http"

	"github.com/JeremyIV/summary-pyramid/internal/config"
	"github.com/JeremyIV/summary-pyramid/internal/pipeline"
	"github.com/JeremyIV/summary-pyramid/internal/summarize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API for the document query service.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	claude       *summarize.Client
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, claude *summarize.Client, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		claude:       claude,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/queries", s.handleSubmitQuery)
		r.Get("/api/queries/{jobID}/status", s.handleQueryStatus)
		r.Get("/api/queries/{jobID}/answer", s.handleQueryAnswer)
		r.Get("/api/queries/{jobID}/pyramid", s.handleQueryPyramid)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
