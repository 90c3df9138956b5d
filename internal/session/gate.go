package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/querycache"
)

// ErrLoggedOut is returned by operations that need an active session.
var ErrLoggedOut = errors.New("session: not logged in")

// Authenticator resolves a bearer token into the session it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Session, error)
}

// Listener observes session changes. It receives the new session on login
// and nil on logout.
type Listener func(s *Session)

// Gate owns the client's authenticated session and the query cache that is
// only meaningful while that session lasts. Components that talk to the API
// subscribe to the gate and stay inactive while no session is present.
type Gate struct {
	auth  Authenticator
	cache *querycache.Cache

	mu      sync.RWMutex
	current *Session
	token   string

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewGate creates a logged-out gate.
func NewGate(auth Authenticator, cache *querycache.Cache) *Gate {
	return &Gate{
		auth:      auth,
		cache:     cache,
		listeners: make(map[int]Listener),
	}
}

// CurrentUser returns the active session or nil when logged out.
func (g *Gate) CurrentUser() *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.current == nil {
		return nil
	}
	s := *g.current
	return &s
}

// Token returns the bearer credential of the active session.
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// Active reports whether a session is present.
func (g *Gate) Active() bool {
	return g.CurrentUser() != nil
}

// Cache returns the query cache scoped to this gate.
func (g *Gate) Cache() *querycache.Cache {
	return g.cache
}

// Login verifies token against the API and, on success, makes it the active
// session. Any previous session is logged out first so listeners always see
// a clean nil -> session transition.
func (g *Gate) Login(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("session: login: empty token")
	}
	sess, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("session: login: %w", err)
	}
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("session: login: empty session")
	}

	if g.Active() {
		g.Logout()
	}

	g.mu.Lock()
	s := *sess
	g.current = &s
	g.token = token
	g.mu.Unlock()

	log.Info().Str("component", "session").Str("user_id", s.ID).Msg("logged in")
	g.notify(&s)
	return &s, nil
}

// Logout clears the session. The query cache is emptied before the session
// is dropped, so no caller observes a logged-out gate with cached data.
// Listeners run synchronously afterwards and every poller has stopped by the
// time Logout returns.
func (g *Gate) Logout() {
	g.mu.Lock()
	if g.current == nil {
		g.mu.Unlock()
		return
	}
	userID := g.current.ID
	g.cache.Clear()
	g.current = nil
	g.token = ""
	g.mu.Unlock()

	g.notify(nil)
	log.Info().Str("component", "session").Str("user_id", userID).Msg("logged out")
}

// Invalidate ends the session after the API rejected its credential.
func (g *Gate) Invalidate(cause error) {
	if !g.Active() {
		return
	}
	log.Warn().Str("component", "session").Err(cause).Msg("session rejected by server")
	g.Logout()
}

// Subscribe registers l and returns a function that removes it.
func (g *Gate) Subscribe(l Listener) func() {
	g.lmu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	g.lmu.Unlock()

	return func() {
		g.lmu.Lock()
		delete(g.listeners, id)
		g.lmu.Unlock()
	}
}

func (g *Gate) notify(s *Session) {
	g.lmu.Lock()
	ls := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		ls = append(ls, l)
	}
	g.lmu.Unlock()

	for _, l := range ls {
		if s == nil {
			l(nil)
			continue
		}
		cp := *s
		l(&cp)
	}
}
