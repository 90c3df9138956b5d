// Package chat defines the team-chat data model shared by the API server and
// the polling client: messages, typing indicators, validation, and the
// Postgres-backed message store.
package chat

import (
	"sort"
	"time"
)

// Message is a single chat message. Messages are immutable once created and
// the conversation is append-only, ordered by CreatedAt ascending.
type Message struct {
	ID                string    `json:"id"`
	AuthorID          string    `json:"author_id"`
	AuthorDisplayName string    `json:"author_display_name"`
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"created_at"`
}

// TypingIndicator signals that an author is (or stopped) composing a message.
// Indicators are ephemeral and keyed by author; the latest write wins.
type TypingIndicator struct {
	AuthorID          string    `json:"author_id"`
	AuthorDisplayName string    `json:"author_display_name"`
	IsTyping          bool      `json:"is_typing"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SortMessages orders msgs by CreatedAt ascending in place. Ties are broken by
// ID so that two fetches of the same set always render identically.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortedCopy returns a sorted copy of msgs, leaving the input untouched.
func SortedCopy(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	SortMessages(out)
	return out
}

// ContainsMessage reports whether msgs holds a message with the given ID.
func ContainsMessage(msgs []Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// LatestTyping collapses indicators to one per author, keeping the most
// recently updated entry. The result is ordered by author display name.
func LatestTyping(indicators []TypingIndicator) []TypingIndicator {
	latest := make(map[string]TypingIndicator, len(indicators))
	for _, ind := range indicators {
		cur, ok := latest[ind.AuthorID]
		if !ok || ind.UpdatedAt.After(cur.UpdatedAt) {
			latest[ind.AuthorID] = ind
		}
	}

	out := make([]TypingIndicator, 0, len(latest))
	for _, ind := range latest {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AuthorDisplayName != out[j].AuthorDisplayName {
			return out[i].AuthorDisplayName < out[j].AuthorDisplayName
		}
		return out[i].AuthorID < out[j].AuthorID
	})
	return out
}
