// Package presence stores typing indicators in Redis. Each author has one
// hash holding their latest state, and a sorted set indexes authors by the
// time of their last update so stale entries can be pruned in one call:
//
//	typing:<author_id>  hash {author_id, display_name, is_typing, updated_at}
//	typing:authors      zset member=<author_id> score=updated_at (unix ms)
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsdesk/teamchat/internal/chat"
)

const (
	IndicatorPrefix = "typing:"
	AuthorsKey      = "typing:authors"

	// Window is how long a typing indicator stays visible without a refresh.
	Window = 5 * time.Second
)

type record struct {
	AuthorID    string `redis:"author_id"`
	DisplayName string `redis:"display_name"`
	IsTyping    bool   `redis:"is_typing"`
	UpdatedAt   int64  `redis:"updated_at"` // unix ms
}

// Store reads and writes typing indicators.
type Store struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewStore creates a typing store on client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client, window: Window, now: time.Now}
}

// Set records ind as its author's latest state. UpdatedAt is stamped by the
// store.
func (s *Store) Set(ctx context.Context, ind chat.TypingIndicator) (chat.TypingIndicator, error) {
	if ind.AuthorID == "" {
		return ind, fmt.Errorf("presence: empty author")
	}
	now := s.now()
	ind.UpdatedAt = now.UTC()
	ms := now.UnixMilli()
	key := IndicatorPrefix + ind.AuthorID

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"author_id":    ind.AuthorID,
		"display_name": ind.AuthorDisplayName,
		"is_typing":    ind.IsTyping,
		"updated_at":   ms,
	})
	pipe.Expire(ctx, key, s.window)
	pipe.ZAdd(ctx, AuthorsKey, redis.Z{Score: float64(ms), Member: ind.AuthorID})
	if _, err := pipe.Exec(ctx); err != nil {
		return ind, fmt.Errorf("presence: set: %w", err)
	}
	return ind, nil
}

// List returns the authors typing within the window, excluding exclude.
// Entries older than the window are removed from the index first.
func (s *Store) List(ctx context.Context, exclude string) ([]chat.TypingIndicator, error) {
	cutoff := s.now().Add(-s.window).UnixMilli()

	if err := s.client.ZRemRangeByScore(ctx, AuthorsKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("presence: prune: %w", err)
	}
	authors, err := s.client.ZRangeByScore(ctx, AuthorsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(authors))
	for _, a := range authors {
		if a == exclude {
			continue
		}
		cmds = append(cmds, pipe.HGetAll(ctx, IndicatorPrefix+a))
	}
	if len(cmds) == 0 {
		return []chat.TypingIndicator{}, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence: list: %w", err)
	}

	out := make([]chat.TypingIndicator, 0, len(cmds))
	for _, cmd := range cmds {
		var rec record
		if err := cmd.Scan(&rec); err != nil {
			return nil, fmt.Errorf("presence: scan: %w", err)
		}
		if rec.AuthorID == "" || !rec.IsTyping || rec.UpdatedAt < cutoff {
			continue
		}
		out = append(out, chat.TypingIndicator{
			AuthorID:          rec.AuthorID,
			AuthorDisplayName: rec.DisplayName,
			IsTyping:          true,
			UpdatedAt:         time.UnixMilli(rec.UpdatedAt).UTC(),
		})
	}
	return chat.LatestTyping(out), nil
}

// Clear removes an author's indicator, e.g. after they posted a message.
func (s *Store) Clear(ctx context.Context, authorID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, IndicatorPrefix+authorID)
	pipe.ZRem(ctx, AuthorsKey, authorID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: clear: %w", err)
	}
	return nil
}
