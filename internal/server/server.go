package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/logger"
	"github.com/lazypower/totemic/internal/store"
)

// Server is the totemic HTTP API server.
type Server struct {
	coord   *engine.Coordinator
	store   store.Store
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the coordinator. st is only used for health
// checks; every read and write goes through coord.
func New(coord *engine.Coordinator, st store.Store, version string, log *zap.Logger) *Server {
	s := &Server{
		coord:   coord,
		store:   st,
		log:     logger.OrNop(log),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/documents", s.handleCreateDocument)
		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Post("/answers", s.handleAddAnswer)
			r.Post("/engagements", s.handleEngagement)
			r.Post("/rescore", s.handleRescore)
			r.Post("/relations", s.handleRecomputeRelations)
			r.Get("/suggestions", s.handleSuggestions)
			r.Get("/graph", s.handleGraph)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := store.Ping(r.Context(), s.store) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   storeOK,
		"policy":  s.coord.Policy().String(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
