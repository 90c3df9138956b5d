// Package account stores the people who can chat. Accounts are provisioned by
// operators; there is no self-service signup.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownUser is shown for messages whose author no longer resolves.
const UnknownUser = "Unknown User"

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account: not found")

// Account is a chat participant.
type Account struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// DisplayName returns the name shown next to the account's messages.
func (a *Account) DisplayName() string {
	return DisplayName(a.FirstName, a.LastName, a.Email)
}

// DisplayName renders "First Last" when both parts are set and falls back to
// the email address, then to UnknownUser.
func DisplayName(first, last, email string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first != "" && last != "" {
		return first + " " + last
	}
	if email = strings.TrimSpace(email); email != "" {
		return email
	}
	return UnknownUser
}

// Store manages accounts in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an account store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert creates the account for email or updates its name if it exists.
func (s *Store) Upsert(ctx context.Context, email, first, last string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("account: email is required")
	}

	const query = `
		INSERT INTO users (id, email, first_name, last_name)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (email) DO UPDATE
		   SET first_name = COALESCE(EXCLUDED.first_name, users.first_name),
		       last_name  = COALESCE(EXCLUDED.last_name, users.last_name)
		RETURNING id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), created_at`

	var a Account
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), email, first, last).
		Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account: upsert %s: %w", email, err)
	}
	return &a, nil
}

// Get looks an account up by ID.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	const query = `
		SELECT id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), created_at
		FROM users WHERE id = $1`

	var a Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: get %s: %w", id, err)
	}
	return &a, nil
}
