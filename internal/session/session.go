// Package session covers both ends of an authenticated chat session: the
// Redis-backed bearer token store used by the API, and the client-side Gate
// that owns the active session and the query cache and switches dependent
// pollers on and off.
package session

// Session is the authenticated user as returned by GET /auth/me.
type Session struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
