package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/teamchat/internal/chat"
)

type fixture struct {
	store *Store
	mr    *miniredis.Miniredis
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	fx := &fixture{mr: mr, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	fx.store = NewStore(client)
	fx.store.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
	fx.mr.FastForward(d)
}

func (fx *fixture) set(t *testing.T, author string, typing bool) {
	t.Helper()
	_, err := fx.store.Set(context.Background(), chat.TypingIndicator{
		AuthorID: author, AuthorDisplayName: "name-" + author, IsTyping: typing,
	})
	require.NoError(t, err)
}

func authors(ind []chat.TypingIndicator) []string {
	out := make([]string, len(ind))
	for i, x := range ind {
		out[i] = x.AuthorID
	}
	return out
}

func TestSetAndList(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, "u-1", true)
	fx.set(t, "u-2", true)

	got, err := fx.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, authors(got))
	assert.Equal(t, fx.now, got[0].UpdatedAt)
	assert.Equal(t, "name-"+got[0].AuthorID, got[0].AuthorDisplayName)
}

func TestListExcludesCaller(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, "u-1", true)
	fx.set(t, "u-2", true)

	got, err := fx.store.List(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, authors(got))
}

func TestListSkipsStoppedTyping(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, "u-1", true)
	fx.set(t, "u-1", false)

	got, err := fx.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListPrunesAfterWindow(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, "u-1", true)
	fx.advance(3 * time.Second)
	fx.set(t, "u-2", true)
	fx.advance(2*time.Second + time.Millisecond)

	got, err := fx.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, authors(got))

	n, err := fx.mr.ZMembers(AuthorsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, n)
}

func TestClear(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, "u-1", true)
	require.NoError(t, fx.store.Clear(context.Background(), "u-1"))

	got, err := fx.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, fx.mr.Exists(IndicatorPrefix+"u-1"))
}

func TestSetRequiresAuthor(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.store.Set(context.Background(), chat.TypingIndicator{IsTyping: true})
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	fx := newFixture(t)
	got, err := fx.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
