// Package api serves the latest UPS snapshot over HTTP: a JSON REST surface
// and a websocket stream of change notifications.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jamesprial/upswatch/internal/auth"
	"github.com/jamesprial/upswatch/internal/safety"
	"github.com/jamesprial/upswatch/internal/ups"
)

// Refresher triggers an out-of-band poll.
type Refresher interface {
	TriggerRefresh()
}

// Subscriber hands out change subscriptions.
type Subscriber interface {
	Subscribe(watched []string) *ups.Subscription
}

// Options tunes the API.
type Options struct {
	// Watched is the default field list for the events stream.
	Watched []string
	// StaleAfter marks the snapshot stale in /healthz; zero disables.
	StaleAfter time.Duration
	// RequestTimeout bounds REST handlers; zero means 20s.
	RequestTimeout time.Duration
}

// API groups HTTP handlers and dependencies.
type API struct {
	resolver  ups.Resolver
	refresher Refresher
	hub       Subscriber
	audit     *safety.AuditLogger
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// New creates the API. refresher and hub may be nil, in which case the
// corresponding routes answer 501.
func New(res ups.Resolver, refresher Refresher, hub Subscriber, audit *safety.AuditLogger, logger *slog.Logger, opts Options) *API {
	if res == nil {
		panic("resolver must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Watched == nil {
		opts.Watched = ups.DefaultWatchedFields
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	return &API{
		resolver:  res,
		refresher: refresher,
		hub:       hub,
		audit:     audit,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Logger returns the request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Handler builds the routing tree. extra mounts additional handlers (such
// as the MCP transport) behind the same auth middleware; /healthz is
// always public.
func (a *API) Handler(authToken string, extra map[string]http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(RequestLogger(a))

	r.Get("/healthz", a.Health)

	r.Group(func(r chi.Router) {
		r.Use(auth.NewAuthMiddleware(authToken))

		for pattern, h := range extra {
			r.Handle(pattern, h)
		}

		r.Route("/api/v1", func(v1 chi.Router) {
			// Long-lived; kept out of the request timeout.
			v1.Get("/events", a.Events)

			v1.Group(func(rest chi.Router) {
				rest.Use(middleware.Timeout(a.opts.RequestTimeout))
				rest.Use(AuditRequests(a.audit))

				rest.Get("/devices", a.ListDevices)
				rest.Get("/devices/{device}", a.GetDevice)
				rest.Get("/devices/{device}/status", a.GetStatus)
				rest.Get("/devices/{device}/var/{param}", a.GetVariable)
				rest.Get("/devices/{device}/var/{param}/type", a.GetVariableType)
				rest.Post("/refresh", a.Refresh)
			})
		})
	})

	return r
}

// RunServer starts server and shuts it down gracefully when ctx is done.
func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// writeLookupError maps resolver sentinels onto status codes.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ups.ErrNoSnapshotYet):
		writeError(w, http.StatusServiceUnavailable, "no_snapshot", err.Error())
	case errors.Is(err, ups.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "device_not_found", err.Error())
	case errors.Is(err, ups.ErrVariableNotFound):
		writeError(w, http.StatusNotFound, "variable_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
