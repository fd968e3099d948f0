// Package auth provides HTTP middleware for bearer token authentication.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware returns an HTTP middleware that enforces bearer token
// authentication. An empty token disables authentication.
//
// Requests must carry exactly
//
//	Authorization: Bearer <token>
//
// with a case-sensitive prefix and a single space. Websocket upgrade
// requests may instead pass the token as the access_token query parameter,
// since browsers cannot set headers on them. Anything else gets a 401 and
// the next handler is never called.
func NewAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !matches(presented(r), token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="upswatch"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"Missing or invalid bearer token"}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presented returns the token the client sent, or "".
func presented(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearerPrefix) {
			return ""
		}
		return h[len(bearerPrefix):]
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func matches(provided, token string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}
