package goask

import (
	"sync"
)

// ConversationSession holds the server-issued conversation handle that links
// consecutive questions into one session. The gateway owns a default session,
// but callers that need independent conversations can create their own and
// pass it to Ask with WithSession.
type ConversationSession struct {
	mu sync.Mutex
	id string
}

// NewConversationSession creates a session with no conversation id; the first
// Ask through it lets the remote service start a fresh conversation.
func NewConversationSession() *ConversationSession {
	return &ConversationSession{}
}

// ConversationID returns the current conversation id, or the empty string
// when none has been assigned yet.
func (s *ConversationSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetConversationID replaces the current conversation id. The gateway calls
// this with the id returned by each successful response; callers may also
// seed a session with a known id.
func (s *ConversationSession) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

// Reset clears the conversation id so the next Ask starts a fresh
// conversation. Resetting an already empty session is a no-op.
func (s *ConversationSession) Reset() {
	s.SetConversationID("")
}
