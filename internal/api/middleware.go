package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jamesprial/upswatch/internal/safety"
)

// LogProvider provides the request logger for middleware.
type LogProvider interface {
	Logger() *slog.Logger
}

// RequestLogger logs basic structured request/response metadata.
func RequestLogger(provider LogProvider) func(http.Handler) http.Handler {
	logger := slog.Default()
	if provider != nil && provider.Logger() != nil {
		logger = provider.Logger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			wrapped := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Debug(
				"http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"bytes", wrapped.size,
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
		})
	}
}

// AuditRequests records every request in the audit trail under the HTTP
// surface. The route pattern stands in for the tool name. A nil logger
// disables auditing.
func AuditRequests(audit *safety.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if audit == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			var params map[string]any
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
				for i, k := range rctx.URLParams.Keys {
					if k == "*" {
						continue
					}
					if params == nil {
						params = make(map[string]any, len(rctx.URLParams.Keys))
					}
					v := rctx.URLParams.Values[i]
					if dec, err := url.PathUnescape(v); err == nil {
						v = dec
					}
					params[k] = v
				}
			}
			audit.Record(safety.SurfaceHTTP, r.Method+" "+route, params, strconv.Itoa(wrapped.statusCode), start)
		})
	}
}

// RecoverJSON converts a panic into a structured JSON error response.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				slog.Default().Error("panic recovered", "panic", fmt.Sprint(recovered), "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "internal_error",
						"message": "Internal server error",
					},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseCapture records status and size. It passes Flush and Hijack
// through so streaming transports and websocket upgrades keep working.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (w *responseCapture) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCapture) Write(body []byte) (int, error) {
	size, err := w.ResponseWriter.Write(body)
	w.size += size
	return size, err
}

func (w *responseCapture) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *responseCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *responseCapture) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
