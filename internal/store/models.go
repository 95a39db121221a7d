package store

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// System message types.
const (
	SystemInfo    = "info"
	SystemSuccess = "success"
	SystemError   = "error"
)

// DefaultTitle is the placeholder title a conversation carries until its first
// user message arrives.
const DefaultTitle = "New Conversation"

// TitleMaxLen is the number of characters of the first user message kept as
// the conversation title before an ellipsis is appended.
const TitleMaxLen = 50

// Conversation doubles as the session: its ID is the partition key under
// which uploaded resume content is indexed and searched.
type Conversation struct {
	ID        string    `json:"id"` // UUID
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment is an opaque payload forwarded to the generation stage. The
// store only tracks type and metadata, never content.
type Attachment struct {
	Type string `json:"type"` // "file" or "url"
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is immutable once created. Attachments are set for user messages
// only; Type is set for system messages only.
type Message struct {
	ID             string       `json:"id"` // UUID
	ConversationID string       `json:"conversationId"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Type           string       `json:"type,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// NewMessage is the caller-supplied part of a message; the store assigns ID
// and Timestamp on append.
type NewMessage struct {
	Role        string
	Content     string
	Attachments []Attachment
	Type        string
}

// TruncateTitle derives a conversation title from the first user message.
func TruncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLen {
		return content
	}
	return string(runes[:TitleMaxLen]) + "..."
}
