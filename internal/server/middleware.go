package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/favisync/idgen"
)

type contextKey string

const loggerKey contextKey = "server_logger"

// svgPolicy forbids everything but inline styles, which the favicon SVG
// embeds.
const svgPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"

// securityHeaders sets the headers applied to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", svgPolicy)
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// headToGet lets r.Get routes answer HEAD. net/http drops the body.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// requestID tags each request with an ID, in the X-Request-ID header and
// in a per-request logger.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := idgen.New()
		w.Header().Set("X-Request-ID", id)

		logger := s.logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
		logger.Debug("server: request", "remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey, logger)))
	})
}

// requestLogger returns the per-request logger, or fallback.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return fallback
}
