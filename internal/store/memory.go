package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all conversation state in process memory. It is the
// reference backend: state does not survive a restart. A single RWMutex
// guards the maps; store operations are memory-only and cheap, so the coarse
// lock is not a bottleneck.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]*Conversation
	messages      map[string][]Message
	titled        map[string]bool      // first-user-message title already applied
	lastStamp     map[string]time.Time // per-conversation append clock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		titled:        make(map[string]bool),
		lastStamp:     make(map[string]time.Time),
	}
}

func (s *MemoryStore) CreateConversation() (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return s.copyOf(conv), nil
}

func (s *MemoryStore) ListConversations() ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	// Most recent first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetConversation(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyOf(conv), nil
}

func (s *MemoryStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	delete(s.titled, id)
	delete(s.lastStamp, id)
	return nil
}

func (s *MemoryStore) ListMessages(conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	// Messages are appended with non-decreasing timestamps, so append order
	// is already timestamp order with insertion-order ties.
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) AppendMessage(conversationID string, nm NewMessage) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	ts := time.Now()
	if last := s.lastStamp[conversationID]; ts.Before(last) {
		ts = last
	}
	s.lastStamp[conversationID] = ts

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           nm.Role,
		Content:        nm.Content,
		Attachments:    nm.Attachments,
		Type:           nm.Type,
		Timestamp:      ts,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	if nm.Role == RoleUser && !s.titled[conversationID] {
		conv.Title = TruncateTitle(nm.Content)
		s.titled[conversationID] = true
	}
	conv.UpdatedAt = ts

	return &msg, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) copyOf(conv *Conversation) *Conversation {
	c := *conv
	return &c
}

