package store

import "errors"

// ErrNotFound is returned when a referenced conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store owns conversation and message state. Implementations must serialize
// mutations so that concurrent appends to the same conversation keep message
// timestamps non-decreasing and apply the first-message title rule exactly
// once.
type Store interface {
	// CreateConversation allocates a new conversation with the default
	// placeholder title and both timestamps set to now.
	CreateConversation() (*Conversation, error)

	// ListConversations returns all conversations, most recently created
	// first.
	ListConversations() ([]Conversation, error)

	// GetConversation returns ErrNotFound when the id is absent.
	GetConversation(id string) (*Conversation, error)

	// DeleteConversation removes the conversation and all of its messages
	// atomically with respect to subsequent reads. ErrNotFound when absent.
	DeleteConversation(id string) error

	// ListMessages returns the conversation's messages sorted by timestamp
	// ascending, insertion order on ties. ErrNotFound when the conversation
	// is absent.
	ListMessages(conversationID string) ([]Message, error)

	// AppendMessage assigns an id and timestamp, stores the message, bumps
	// the conversation's UpdatedAt, and sets the title from the first
	// user-role message. ErrNotFound when the conversation is absent.
	AppendMessage(conversationID string, msg NewMessage) (*Message, error)

	Close() error
}
