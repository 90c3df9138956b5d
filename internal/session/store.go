package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the idle lifetime of a bearer session in Redis.
	SessionTTL = 12 * time.Hour
)

// ErrNotFound is returned when a token has no live session.
var ErrNotFound = errors.New("session: not found")

// record is the Redis hash layout of a session.
type record struct {
	ID          string `redis:"id"`
	DisplayName string `redis:"display_name"`
	Email       string `redis:"email"`
	CreatedAt   int64  `redis:"created_at"`  // unix timestamp
	LastActive  int64  `redis:"last_active"` // unix timestamp
}

// Store manages bearer sessions in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store on an existing Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: SessionTTL}
}

// Create stores sess under token with a fresh TTL.
func (s *Store) Create(ctx context.Context, token string, sess Session) error {
	if token == "" {
		return fmt.Errorf("session: empty token")
	}
	key := SessionPrefix + token
	now := time.Now().Unix()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":           sess.ID,
		"display_name": sess.DisplayName,
		"email":        sess.Email,
		"created_at":   now,
		"last_active":  now,
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Get resolves a token. It returns ErrNotFound for unknown or expired tokens.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var rec record
	if err := s.client.HGetAll(ctx, SessionPrefix+token).Scan(&rec); err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	if rec.ID == "" {
		return nil, ErrNotFound
	}
	return &Session{ID: rec.ID, DisplayName: rec.DisplayName, Email: rec.Email}, nil
}

// Touch records activity on a session and extends its TTL.
func (s *Store) Touch(ctx context.Context, token string) error {
	key := SessionPrefix + token
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, SessionPrefix+token).Err()
}
