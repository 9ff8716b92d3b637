// Package server is the index server behind /sync, /search and /similar.
// Posts are embedded once per profile into SQLite collections named by
// remote.CollectionName and ranked by cosine similarity.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/remote"
)

const maxBodyBytes = 32 << 20

// Server exposes a Service over HTTP
type Server struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// New creates a server. A nil logger is replaced with a nop logger.
func New(svc *Service, l *zap.SugaredLogger) *Server {
	return &Server{svc: svc, logger: logger.OrNop(l)}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /similar", s.handleSimilar)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withRequestLog(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Index server listening", "addr", addr, "profiles", s.svc.Profiles())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Infow("Shutting down index server")
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req remote.SyncRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.svc.Sync(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req remote.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.svc.Search(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req remote.SimilarRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.svc.Similar(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	collections, err := s.svc.Collections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"profiles":    s.svc.Profiles(),
		"collections": collections,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, badRequest("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnw("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var apiErr *Error
	if errors.As(err, &apiErr) {
		status = apiErr.Status
	}

	if status >= 500 {
		s.logger.Errorw("Request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debugw("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debugw("Request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}
