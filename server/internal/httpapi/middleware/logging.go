package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/internal/pkg/logger"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

// RequestIDHeader carries the request id; an incoming value is reused so a proxy's id flows through
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// routeTemplate returns the mux route pattern so metrics are labelled per route, not per URL
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// LogRequest logs HTTP requests with slog and records request metrics
func LogRequest(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPActiveRequests.Inc()
			defer metrics.HTTPActiveRequests.Dec()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // default if WriteHeader not called
			}

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			path := routeTemplate(r)
			metrics.RecordHTTPRequest(r.Method, path, wrapped.statusCode, duration)

			// Skip logging health checks and scrapes to reduce noise
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}

			// Get real IP (consider X-Forwarded-For if behind proxy)
			clientIP := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientIP = forwarded
			} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
				clientIP = realIP
			}

			reqLog := logger.WithDuration(logger.WithHTTPRequest(logger.WithRequest(log, requestID), r.Method, r.URL.Path), duration)
			attrs := []any{
				slog.String("route", path),
				slog.Int("status", wrapped.statusCode),
				slog.Int64("bytes", wrapped.written),
				slog.String("client_ip", clientIP),
				slog.String("user_agent", r.UserAgent()),
			}
			if userCtx, err := auth.GetUserFromContext(r.Context()); err == nil {
				attrs = append(attrs, slog.String("user_id", userCtx.UserID))
			}

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}
			reqLog.Log(r.Context(), level, "http request", attrs...)
		})
	}
}
