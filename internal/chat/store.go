package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/teamchat/internal/account"
)

const (
	// DefaultPageLimit is the page size used when a caller does not ask for one.
	DefaultPageLimit = 100
	// MaxPageLimit bounds a single List call.
	MaxPageLimit = 200
)

// Store manages chat messages in PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts a message authored by authorID and returns it. The display
// name is the author's name at send time as resolved by the caller's session.
func (s *Store) Create(ctx context.Context, authorID, authorName, body string) (*Message, error) {
	msg := &Message{
		ID:                uuid.NewString(),
		AuthorID:          authorID,
		AuthorDisplayName: authorName,
		Body:              body,
		CreatedAt:         s.now().UTC(),
	}

	const query = `
		INSERT INTO chat_messages (id, user_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`

	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.AuthorID, msg.Body, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	return msg, nil
}

// List returns up to limit messages, skipping the newest skip ones, in
// ascending CreatedAt order. The page is taken from the newest end of the
// conversation so that the default call returns the most recent history.
func (s *Store) List(ctx context.Context, skip, limit int) ([]Message, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	const query = `
		SELECT m.id, m.user_id, m.content, m.created_at,
		       COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, '')
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at DESC, m.id DESC
		OFFSET $1 LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m                  Message
			first, last, email string
		)
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Body, &m.CreatedAt, &first, &last, &email); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		m.AuthorDisplayName = account.DisplayName(first, last, email)
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}

	SortMessages(msgs)
	return msgs, nil
}
