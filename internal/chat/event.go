package chat

// Event types published on the message bus.
const (
	EventMessageCreated = "message_created"
)

// Event is the payload published to chat.* subjects so that out-of-process
// consumers (the moderator) see every stored message.
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}
