package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
)

// RecoveryMiddleware turns a handler panic into a JSON 500
func (s *Server) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := errors.RecoverError(rec)
				s.logger.Error("panic serving %s %s: %v", r.Method, r.URL.Path, err)
				handleError(w, err)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalidInput(err), errors.IsSerialization(err):
		return http.StatusBadRequest
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes an error response to the client
func handleError(w http.ResponseWriter, err error) {
	status := "ERROR"
	if errors.IsNotFound(err) {
		status = "NOT_FOUND"
	}
	writeJSON(w, statusFor(err), shared.Response{Status: status, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// LoggingMiddleware logs method, path, status and latency of every request
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		s.logger.Info("%s %s %d %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
