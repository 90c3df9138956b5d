package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/flag"
	"github.com/opsdesk/teamchat/internal/mute"
)

type memFlags struct {
	mu    sync.Mutex
	flags []flag.Flag
	err   error
}

func (m *memFlags) Create(_ context.Context, f *flag.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	f.ID = int64(len(m.flags) + 1)
	f.CreatedAt = time.Now()
	m.flags = append(m.flags, *f)
	return nil
}

func (m *memFlags) CountRecent(_ context.Context, userID string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.flags {
		if f.UserID == userID && time.Since(f.CreatedAt) <= window {
			n++
		}
	}
	return n, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	verdicts []Verdict
}

func (p *capturePublisher) PublishModerationResult(authorID string, data []byte) error {
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.mu.Lock()
	p.verdicts = append(p.verdicts, v)
	p.mu.Unlock()
	return nil
}

func newService(t *testing.T) (*Service, *memFlags, *mute.Store, *capturePublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	flags := &memFlags{}
	mutes := mute.NewStore(client)
	pub := &capturePublisher{}
	return NewService(NewFilterWithTerms([]string{"badword"}), flags, mutes, pub), flags, mutes, pub
}

func message(id, body string) chat.Message {
	return chat.Message{ID: id, AuthorID: "u-1", AuthorDisplayName: "Ada", Body: body, CreatedAt: time.Now()}
}

func TestReview_Clean(t *testing.T) {
	svc, flags, _, _ := newService(t)

	v, err := svc.Review(context.Background(), message("m-1", "standup moved to 10"))
	require.NoError(t, err)
	assert.False(t, v.Blocked)
	assert.Empty(t, flags.flags)
}

func TestReview_FlagsBlockedMessage(t *testing.T) {
	svc, flags, mutes, _ := newService(t)

	v, err := svc.Review(context.Background(), message("m-1", "what a badword"))
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Equal(t, ReasonBlockedKeyword, v.Reason)
	assert.Equal(t, "badword", v.Term)
	assert.False(t, v.Muted)

	require.Len(t, flags.flags, 1)
	assert.Equal(t, "m-1", flags.flags[0].MessageID)
	assert.Equal(t, "what a badword", flags.flags[0].Body)

	muted, _, _, err := mutes.IsMuted(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestReview_MutesAtThreshold(t *testing.T) {
	svc, _, mutes, _ := newService(t)
	ctx := context.Background()

	var v Verdict
	for i := 0; i < mute.FlagThreshold; i++ {
		var err error
		v, err = svc.Review(ctx, message("m", "badword"))
		require.NoError(t, err)
	}
	assert.True(t, v.Muted)
	assert.Equal(t, int(mute.Mute15Min.Seconds()), v.MuteSeconds)

	muted, remaining, reason, err := mutes.IsMuted(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, muted)
	assert.Positive(t, remaining)
	assert.Equal(t, ReasonBlockedKeyword, reason)
}

func TestReview_FlagStoreError(t *testing.T) {
	svc, flags, _, _ := newService(t)
	flags.err = errors.New("db down")

	v, err := svc.Review(context.Background(), message("m-1", "badword"))
	require.Error(t, err)
	assert.True(t, v.Blocked)
	assert.False(t, v.Muted)
}

func TestHandleEvent_PublishesVerdict(t *testing.T) {
	svc, _, _, pub := newService(t)

	data, err := json.Marshal(chat.Event{Type: chat.EventMessageCreated, Message: message("m-9", "badword")})
	require.NoError(t, err)
	svc.HandleEvent(data)

	require.Len(t, pub.verdicts, 1)
	assert.Equal(t, "m-9", pub.verdicts[0].MessageID)
	assert.True(t, pub.verdicts[0].Blocked)
}

func TestHandleEvent_IgnoresCleanAndMalformed(t *testing.T) {
	svc, _, _, pub := newService(t)

	svc.HandleEvent([]byte("{not json"))
	data, err := json.Marshal(chat.Event{Type: chat.EventMessageCreated, Message: message("m-1", "hello team")})
	require.NoError(t, err)
	svc.HandleEvent(data)

	assert.Empty(t, pub.verdicts)
}
