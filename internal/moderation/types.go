package moderation

// FilterResult is the outcome of Filter.Check.
type FilterResult struct {
	Blocked bool
	Reason  string // ReasonBlockedKeyword or ReasonSpamPattern
	Term    string // matched blocklist term or spam check name
}

// Verdict is published on moderation.result after a message was reviewed.
type Verdict struct {
	MessageID   string `json:"message_id"`
	AuthorID    string `json:"author_id"`
	Blocked     bool   `json:"blocked"`
	Reason      string `json:"reason,omitempty"`
	Term        string `json:"term,omitempty"`
	Muted       bool   `json:"muted,omitempty"`
	MuteSeconds int    `json:"mute_seconds,omitempty"`
}
