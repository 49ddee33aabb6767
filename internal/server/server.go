// Package server serves the current favicon over HTTP.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/favisync/snapshot"
)

// Source provides the snapshot to serve.
type Source interface {
	Get() (snapshot.Snapshot, bool)
}

// History lists past snapshots, newest first.
type History interface {
	Recent(ctx context.Context, n int) ([]snapshot.Snapshot, error)
}

// Server exposes /favicon.svg, /favicon, /favicons and /healthz.
type Server struct {
	src     Source
	history History
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables GET /favicons.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server reading from src.
func New(src Source, opts ...Option) *Server {
	s := &Server{src: src, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(headToGet, securityHeaders, s.requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/favicon.svg", s.handleSVG)
	r.Get("/favicon", s.handleJSON)
	if s.history != nil {
		r.Get("/favicons", s.handleHistory)
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server: listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.src.Get()
	if !ok {
		http.Error(w, "no favicon yet", http.StatusNotFound)
		return
	}
	etag := resourceETag(snap)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	doc, err := snapshot.Decode(snap.Resource)
	if err != nil {
		requestLogger(r.Context(), s.logger).Error("server: decode favicon", "id", snap.ID, "error", err)
		http.Error(w, "corrupt favicon", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(doc))
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.src.Get()
	if !ok {
		http.Error(w, "no favicon yet", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be in 1..1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	snaps, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		requestLogger(r.Context(), s.logger).Error("server: history", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}
	writeJSON(w, snaps)
}

// resourceETag hashes the whole resource. A stylesheet change keeps the
// markup hash.
func resourceETag(snap snapshot.Snapshot) string {
	sum := sha256.Sum256([]byte(snap.Resource))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
