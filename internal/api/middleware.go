package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/metrics"
	"github.com/opsdesk/teamchat/internal/protocol"
	"github.com/opsdesk/teamchat/internal/session"
)

type ctxKey int

const sessionKey ctxKey = iota

// sessionFrom returns the session stored by authenticated.
func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticated resolves the bearer token and refreshes the session TTL.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			protocol.WriteError(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "missing bearer token")
			return
		}

		sess, err := s.deps.Sessions.Get(r.Context(), token)
		if errors.Is(err, session.ErrNotFound) {
			protocol.WriteError(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "invalid or expired token")
			return
		}
		if err != nil {
			log.Error().Str("component", "api").Err(err).Msg("session lookup failed")
			protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternal, "session lookup failed")
			return
		}

		if err := s.deps.Sessions.Touch(r.Context(), token); err != nil {
			log.Debug().Str("component", "api").Err(err).Msg("session touch failed")
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics and a debug log line per request.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(route, rec.status, elapsed)
		log.Debug().Str("component", "api").
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}
