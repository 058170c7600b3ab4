package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/engine"
	"github.com/lazypower/seedbed/internal/feed"
	"github.com/lazypower/seedbed/internal/store"
)

// ViewerHeader carries the acting actor's ID on every request.
const ViewerHeader = "X-Viewer-ID"

// Server is the seedbed HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	feeds   *feed.Builder
	logger  *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the given store, engine and feed builder.
func New(db *store.DB, eng *engine.Engine, feeds *feed.Builder, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:      db,
		engine:  eng,
		feeds:   feeds,
		logger:  logger.Named("http"),
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
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/units", s.handlePlant)
		r.Get("/units/{unitID}", s.handleGetUnit)
		r.Post("/units/{unitID}/views", s.handleView)
		r.Post("/units/{unitID}/shares", s.handleShare)
		r.Post("/units/{unitID}/transition", s.handleTransition)
		r.Post("/units/{unitID}/comments", s.handleAddComment)
		r.Get("/units/{unitID}/comments", s.handleListComments)

		r.Put("/comments/{commentID}/votes", s.handleVote)
		r.Delete("/comments/{commentID}/votes", s.handleRetractVote)

		r.Get("/feeds/discovery", s.handleDiscovery)
		r.Get("/feeds/following", s.handleFollowing)
		r.Get("/feeds/private", s.handlePrivate)
		r.Get("/search", s.handleSearch)

		r.Post("/lifecycle/run", s.handleLifecycleRun)
		r.Post("/archive/run", s.handleArchiveRun)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(v)
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrComposted),
		errors.Is(err, engine.ErrPassInProgress):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrEmptyBody),
		errors.Is(err, feed.ErrEmptyQuery),
		errors.Is(err, feed.ErrViewerRequired):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func viewer(r *http.Request) string { return r.Header.Get(ViewerHeader) }

func limitParam(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
