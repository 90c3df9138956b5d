// Package api serves the chat REST API polled by teamchat clients: the
// caller's identity, the message history, posting, and typing indicators.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/metrics"
	"github.com/opsdesk/teamchat/internal/protocol"
	"github.com/opsdesk/teamchat/internal/ratelimit"
	"github.com/opsdesk/teamchat/internal/session"
)

// Config holds tunable parameters for the HTTP server.
type Config struct {
	ListenAddr      string        // address to listen on, e.g. ":8080"
	ReadTimeout     time.Duration // full request read deadline
	WriteTimeout    time.Duration // response write deadline
	IdleTimeout     time.Duration // keep-alive idle deadline
	ShutdownTimeout time.Duration // grace period for in-flight requests
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// SessionStore resolves bearer tokens.
type SessionStore interface {
	Get(ctx context.Context, token string) (*session.Session, error)
	Touch(ctx context.Context, token string) error
}

// MessageStore persists chat messages.
type MessageStore interface {
	Create(ctx context.Context, authorID, authorName, body string) (*chat.Message, error)
	List(ctx context.Context, skip, limit int) ([]chat.Message, error)
}

// TypingStore holds typing indicators.
type TypingStore interface {
	Set(ctx context.Context, ind chat.TypingIndicator) (chat.TypingIndicator, error)
	List(ctx context.Context, exclude string) ([]chat.TypingIndicator, error)
	Clear(ctx context.Context, authorID string) error
}

// Limiter throttles posting per user.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// MuteChecker reports moderator-issued mutes.
type MuteChecker interface {
	IsMuted(ctx context.Context, userID string) (bool, int, string, error)
}

// Publisher announces stored messages to out-of-process consumers.
type Publisher interface {
	PublishMessageCreated(data []byte) error
}

// Deps are the server's collaborators. Limiter, Mutes and Events are
// optional.
type Deps struct {
	Sessions SessionStore
	Messages MessageStore
	Typing   TypingStore
	Limiter  Limiter
	Mutes    MuteChecker
	Events   Publisher
}

// Server is the chat API HTTP server.
type Server struct {
	config     Config
	deps       Deps
	handler    http.Handler
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer wires routes and middleware.
func NewServer(config Config, deps Deps) *Server {
	s := &Server{config: config, deps: deps, startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+protocol.PathHealth, s.handleHealth)
	mux.Handle("GET "+protocol.PathMetrics, metrics.Handler())

	mux.Handle("GET "+protocol.PathMe, s.authenticated(s.handleMe))
	mux.Handle("GET "+protocol.PathMessages, s.authenticated(s.handleListMessages))
	mux.Handle("POST "+protocol.PathMessages, s.authenticated(s.handleSendMessage))
	for _, path := range []string{protocol.PathTyping, protocol.PathTypingAlias} {
		mux.Handle("GET "+path, s.authenticated(s.handleListTyping))
		mux.Handle("POST "+path, s.authenticated(s.handleSetTyping))
	}

	s.handler = instrument(mux)
	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	log.Info().Str("component", "api").Str("addr", s.config.ListenAddr).Msg("listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Str("component", "api").Msg("shutting down")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	protocol.WriteJSON(w, http.StatusOK, protocol.HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}
