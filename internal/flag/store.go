// Package flag stores moderation flags raised against chat messages in
// PostgreSQL. Each flag keeps a copy of the flagged body for review, since
// the message itself may later be removed.
package flag

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// validReasons mirrors the CHECK constraint on message_flags.reason.
var validReasons = map[string]bool{
	"blocked_keyword": true,
	"spam_pattern":    true,
}

// Flag is one moderation hit.
type Flag struct {
	ID        int64
	MessageID string
	UserID    string
	Reason    string
	Term      string
	Body      string
	CreatedAt time.Time
}

// Store manages message flags in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a flag store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts f and fills in its ID and CreatedAt.
func (s *Store) Create(ctx context.Context, f *Flag) error {
	if !validReasons[f.Reason] {
		return fmt.Errorf("flag: invalid reason %q", f.Reason)
	}

	const query = `
		INSERT INTO message_flags (message_id, user_id, reason, term, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, f.MessageID, f.UserID, f.Reason, f.Term, f.Body).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("flag: insert: %w", err)
	}
	return nil
}

// CountRecent returns how many flags userID collected within window.
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM message_flags
		WHERE user_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, window.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("flag: count recent: %w", err)
	}
	return count, nil
}

// ListForUser returns the newest flags of userID, most recent first.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]Flag, error) {
	const query = `
		SELECT id, message_id, user_id, reason, term, body, created_at
		FROM message_flags
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("flag: list: %w", err)
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.ID, &f.MessageID, &f.UserID, &f.Reason, &f.Term, &f.Body, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("flag: scan: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flag: list: %w", err)
	}
	return flags, nil
}
