package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/teamchat/internal/querycache"
)

type fakeAuth struct {
	mu     sync.Mutex
	tokens map[string]Session
	calls  int
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s, ok := f.tokens[token]
	if !ok {
		return nil, errors.New("401 unauthorized")
	}
	return &s, nil
}

func newTestGate() (*Gate, *fakeAuth, *querycache.Cache) {
	auth := &fakeAuth{tokens: map[string]Session{
		"good":  {ID: "u-1", DisplayName: "Ada", Email: "ada@example.com"},
		"other": {ID: "u-2", DisplayName: "Bob", Email: "bob@example.com"},
	}}
	cache := querycache.New()
	return NewGate(auth, cache), auth, cache
}

func TestGate_StartsLoggedOut(t *testing.T) {
	g, _, _ := newTestGate()
	assert.Nil(t, g.CurrentUser())
	assert.False(t, g.Active())
	assert.Empty(t, g.Token())
}

func TestGate_LoginSetsSessionAndNotifies(t *testing.T) {
	g, _, _ := newTestGate()
	var seen []*Session
	g.Subscribe(func(s *Session) { seen = append(seen, s) })

	sess, err := g.Login(context.Background(), "good")
	require.NoError(t, err)

	assert.Equal(t, "u-1", sess.ID)
	assert.Equal(t, "u-1", g.CurrentUser().ID)
	assert.Equal(t, "good", g.Token())
	require.Len(t, seen, 1)
	assert.Equal(t, "u-1", seen[0].ID)
}

func TestGate_LoginFailureKeepsLoggedOut(t *testing.T) {
	g, _, _ := newTestGate()
	notified := false
	g.Subscribe(func(*Session) { notified = true })

	_, err := g.Login(context.Background(), "bad")
	assert.Error(t, err)
	assert.Nil(t, g.CurrentUser())
	assert.False(t, notified)

	_, err = g.Login(context.Background(), "")
	assert.Error(t, err)
}

func TestGate_LogoutClearsCacheBeforeNotifying(t *testing.T) {
	g, _, cache := newTestGate()
	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)
	cache.Apply(querycache.KeyMessages, cache.NextSeq(), "cached")

	cacheLenDuringNotify := -1
	g.Subscribe(func(s *Session) {
		if s == nil {
			cacheLenDuringNotify = cache.Len()
		}
	})

	g.Logout()

	assert.Nil(t, g.CurrentUser())
	assert.Empty(t, g.Token())
	assert.Equal(t, 0, cacheLenDuringNotify)
	assert.Equal(t, 0, cache.Len())
}

func TestGate_LoggedOutImpliesEmptyCache(t *testing.T) {
	g, _, cache := newTestGate()
	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)
	cache.Apply(querycache.KeyMessages, cache.NextSeq(), "cached")

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Logout()
	}()

	for {
		select {
		case <-done:
			assert.Equal(t, 0, cache.Len())
			return
		default:
		}
		if !g.Active() {
			assert.Equal(t, 0, cache.Len())
		}
	}
}

func TestGate_FetchIssuedBeforeLogoutIsDiscarded(t *testing.T) {
	g, _, cache := newTestGate()
	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)

	seq := cache.NextSeq()
	g.Logout()

	assert.False(t, cache.Apply(querycache.KeyMessages, seq, "late"))
	assert.Equal(t, 0, cache.Len())
}

func TestGate_LogoutWhenLoggedOutIsNoop(t *testing.T) {
	g, _, _ := newTestGate()
	calls := 0
	g.Subscribe(func(*Session) { calls++ })
	g.Logout()
	assert.Equal(t, 0, calls)
}

func TestGate_ReloginSwitchesThroughLogout(t *testing.T) {
	g, _, _ := newTestGate()
	var ids []string
	g.Subscribe(func(s *Session) {
		if s == nil {
			ids = append(ids, "<nil>")
			return
		}
		ids = append(ids, s.ID)
	})

	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)
	_, err = g.Login(context.Background(), "other")
	require.NoError(t, err)

	assert.Equal(t, []string{"u-1", "<nil>", "u-2"}, ids)
}

func TestGate_Invalidate(t *testing.T) {
	g, _, _ := newTestGate()
	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)

	g.Invalidate(errors.New("401"))
	assert.False(t, g.Active())

	// Second invalidation after logout is harmless.
	g.Invalidate(errors.New("401"))
}

func TestGate_Unsubscribe(t *testing.T) {
	g, _, _ := newTestGate()
	calls := 0
	unsubscribe := g.Subscribe(func(*Session) { calls++ })
	unsubscribe()

	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestGate_CurrentUserIsACopy(t *testing.T) {
	g, _, _ := newTestGate()
	_, err := g.Login(context.Background(), "good")
	require.NoError(t, err)

	u := g.CurrentUser()
	u.DisplayName = "mutated"
	assert.Equal(t, "Ada", g.CurrentUser().DisplayName)
}
