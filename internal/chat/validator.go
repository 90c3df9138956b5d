package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // hard cap on the request body field
	MaxBodyChars    = 500  // matches the composer's input limit
)

// ErrEmptyBody is returned for bodies that are empty after trimming.
var ErrEmptyBody = errors.New("message body is empty")

// ValidateMessage checks that a chat message body meets content requirements.
func ValidateMessage(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	if len(body) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("message exceeds %d character limit", MaxBodyChars)
	}
	return nil
}
