// Package mute keeps temporary posting bans for chat users in Redis.
// A mute is a plain key with a TTL:
//
//	Key:   mute:<user_id>
//	Value: <reason>
//	TTL:   mute duration
//
// Repeat offenders get longer mutes; the offence counter lives under
// offences:<user_id> and resets 24h after the first offence.
package mute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	MutePrefix     = "mute:"
	OffencesPrefix = "offences:"

	Mute15Min  = 15 * time.Minute // 1st offence
	Mute1Hour  = 1 * time.Hour    // 2nd offence
	Mute24Hour = 24 * time.Hour   // 3rd+ offence

	// OffencesTTL is how long the offence counter lives.
	OffencesTTL = 24 * time.Hour

	// FlagThreshold is the number of flagged messages within FlagWindow that
	// triggers a mute.
	FlagThreshold = 3
	FlagWindow    = 24 * time.Hour
)

// Store manages mutes in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a mute store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsMuted reports whether userID is muted, with the remaining seconds and
// the reason. Redis errors are returned; the API fails open on them.
func (s *Store) IsMuted(ctx context.Context, userID string) (bool, int, string, error) {
	key := MutePrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The mute exists; report it without a remaining time.
		return true, 0, reason, nil
	}
	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Mute silences userID for d.
func (s *Store) Mute(ctx context.Context, userID string, d time.Duration, reason string) error {
	return s.client.Set(ctx, MutePrefix+userID, reason, d).Err()
}

// Unmute lifts a mute immediately.
func (s *Store) Unmute(ctx context.Context, userID string) error {
	return s.client.Del(ctx, MutePrefix+userID).Err()
}

func escalationDuration(offences int) time.Duration {
	switch {
	case offences <= 1:
		return Mute15Min
	case offences == 2:
		return Mute1Hour
	default:
		return Mute24Hour
	}
}

// OffenceCount returns the number of mutes issued to userID in the current
// 24h window.
func (s *Store) OffenceCount(ctx context.Context, userID string) (int, error) {
	n, err := s.client.Get(ctx, OffencesPrefix+userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Escalate records an offence and mutes userID for 15m, 1h or 24h on the
// first, second and later offences. It returns the applied duration.
func (s *Store) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	key := OffencesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("mute: escalate incr: %w", err)
	}
	// The window starts at the first offence and does not slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffencesTTL).Err(); err != nil {
			return 0, fmt.Errorf("mute: escalate expire: %w", err)
		}
	}

	d := escalationDuration(int(count))
	if err := s.Mute(ctx, userID, d, reason); err != nil {
		return 0, fmt.Errorf("mute: escalate: %w", err)
	}
	return d, nil
}
