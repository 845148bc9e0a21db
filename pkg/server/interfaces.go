package server

// MessageStore is the slice of the persistence API the relay consumes:
// recording messages, reaction counts and read status. The HTTP client in
// pkg/backend satisfies it; tests swap in an in-memory fake.
type MessageStore interface {
	SendMessage(sender, receiver, text string, responseID int64) (int64, error)
	UpdateReactionCount(messageID, reactionCount int64) error
	UpdateReadStatus(sender, receiver string, isRead bool) error
}
