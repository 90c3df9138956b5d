package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/teamchat/internal/flag"
	"github.com/opsdesk/teamchat/internal/mute"
)

type fakeFlags struct {
	flags []flag.Flag
	err   error
	limit int
}

func (f *fakeFlags) ListForUser(_ context.Context, _ string, limit int) ([]flag.Flag, error) {
	f.limit = limit
	return f.flags, f.err
}

func newMuteStore(t *testing.T) *mute.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mute.NewStore(rdb)
}

func TestModerationReport_MutedUserWithFlags(t *testing.T) {
	ctx := context.Background()
	mutes := newMuteStore(t)
	_, err := mutes.Escalate(ctx, "u-1", "spam_pattern")
	require.NoError(t, err)

	flags := &fakeFlags{flags: []flag.Flag{
		{MessageID: "m-9", Reason: "spam_pattern", Term: "BUY NOW", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}}

	var out bytes.Buffer
	require.NoError(t, writeModerationReport(ctx, &out, flags, mutes, "u-1", 5))

	assert.Equal(t, 5, flags.limit)
	assert.Contains(t, out.String(), "muted:    yes (spam_pattern")
	assert.Contains(t, out.String(), "offences: 1")
	assert.Contains(t, out.String(), "m-9")
	assert.Contains(t, out.String(), "2026-03-01T12:00:00Z")
}

func TestModerationReport_CleanUser(t *testing.T) {
	var out bytes.Buffer
	err := writeModerationReport(context.Background(), &out, &fakeFlags{}, newMuteStore(t), "u-2", 20)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "muted:    no")
	assert.Contains(t, out.String(), "offences: 0")
	assert.Contains(t, out.String(), "no flags")
}

func TestModerationReport_Errors(t *testing.T) {
	var out bytes.Buffer
	err := writeModerationReport(context.Background(), &out, &fakeFlags{}, newMuteStore(t), "u-3", 0)
	assert.Error(t, err)

	boom := errors.New("db down")
	err = writeModerationReport(context.Background(), &out, &fakeFlags{err: boom}, newMuteStore(t), "u-3", 1)
	assert.ErrorIs(t, err, boom)
}

func TestUnmuteLiftsEscalatedMute(t *testing.T) {
	ctx := context.Background()
	mutes := newMuteStore(t)
	_, err := mutes.Escalate(ctx, "u-4", "blocked_keyword")
	require.NoError(t, err)

	require.NoError(t, mutes.Unmute(ctx, "u-4"))
	muted, _, _, err := mutes.IsMuted(ctx, "u-4")
	require.NoError(t, err)
	assert.False(t, muted)

	// Lifting a mute keeps the offence history.
	n, err := mutes.OffenceCount(ctx, "u-4")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
