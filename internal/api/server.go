// Package api exposes the HTTP interface over the canonical store and
// semantic search.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/metrics"
	"github.com/crawlify/crawlify/internal/model"
	"github.com/crawlify/crawlify/internal/semantic"
	"github.com/crawlify/crawlify/internal/store"
)

// VorgangReader is the store surface the read endpoints need.
type VorgangReader interface {
	GetVorgang(ctx context.Context, id string) (model.Vorgang, error)
	ListVorgaenge(ctx context.Context, opts store.ListOptions) ([]model.Vorgang, error)
}

// SearchService ranks Vorgaenge for a free-text query.
type SearchService interface {
	Search(ctx context.Context, query string, k int) ([]semantic.Result, error)
}

// Server wires HTTP handlers to the store and searcher.
type Server struct {
	router   chi.Router
	vorgang  VorgangReader
	searcher SearchService
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(vorgang VorgangReader, searcher SearchService, logger *zap.Logger) *Server {
	s := &Server{
		vorgang:  vorgang,
		searcher: searcher,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/vorgaenge", func(r chi.Router) {
			r.Get("/", s.listVorgaenge)
			r.Get("/{vorgang_id}", s.getVorgang)
		})
		r.Get("/search", s.search)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A cheap store round-trip; a broken pool surfaces here before traffic does.
	if _, err := s.vorgang.ListVorgaenge(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listVorgaenge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Status:     q.Get("status"),
		SortBy:     q.Get("sort"),
		Descending: q.Get("order") == "desc",
		Limit:      intParam(q.Get("limit"), 50),
		Offset:     intParam(q.Get("offset"), 0),
	}
	items, err := s.vorgang.ListVorgaenge(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if items == nil {
		items = []model.Vorgang{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"vorgaenge": items, "count": len(items)})
}

func (s *Server) getVorgang(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vorgang_id")
	v, err := s.vorgang.GetVorgang(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "vorgang not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load vorgang")
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	k := intParam(r.URL.Query().Get("k"), 10)
	results, err := s.searcher.Search(r.Context(), query, k)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []semantic.Result{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
