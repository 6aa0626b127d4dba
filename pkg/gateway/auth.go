package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/calloway/backlot/pkg/orchestrator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type contextKey string

const userContextKey contextKey = "user_context"

// userContextHeader carries the caller identity as base64-encoded JSON,
// populated by the upstream auth layer
const userContextHeader = "X-User-Context"

// requireAuth enforces the shared service credential
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.sharedSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if uc, ok := parseUserContext(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey, uc))
		}

		next.ServeHTTP(w, r)
	})
}

// parseUserContext decodes the opaque user-context header
func parseUserContext(r *http.Request) (orchestrator.UserContext, bool) {
	raw := r.Header.Get(userContextHeader)
	if raw == "" {
		return orchestrator.UserContext{}, false
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return orchestrator.UserContext{}, false
	}

	var uc orchestrator.UserContext
	if err := json.Unmarshal(decoded, &uc); err != nil {
		return orchestrator.UserContext{}, false
	}
	return uc, true
}

// userContextFrom returns the header-provided user context, if any
func userContextFrom(ctx context.Context) (orchestrator.UserContext, bool) {
	uc, ok := ctx.Value(userContextKey).(orchestrator.UserContext)
	return uc, ok
}

// withRequestLogging tags every request with a short id and logs it
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, err := gonanoid.New(12)
		if err != nil {
			requestID = "unknown"
		}

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
