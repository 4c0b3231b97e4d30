package goask

import (
	"context"
	"sync"
	"time"
)

// InMemoryHistoryStorage is an in-memory implementation of HistoryStorage.
// Nothing survives the process; it is the reference implementation the
// persistent backends mirror.
type InMemoryHistoryStorage struct {
	entries map[string]*HistoryEntry
	recency []string
	mu      sync.RWMutex
}

// NewInMemoryHistoryStorage creates a new instance of InMemoryHistoryStorage
func NewInMemoryHistoryStorage() *InMemoryHistoryStorage {
	return &InMemoryHistoryStorage{
		entries: make(map[string]*HistoryEntry),
	}
}

// SaveResult upserts the answer record for a query and moves it to the front
// of the recency index. Existing chat history for the query is preserved.
func (s *InMemoryHistoryStorage) SaveResult(ctx context.Context, query string, record AnswerRecord) error {
	if query == "" {
		return ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[query]
	if !exists {
		entry = &HistoryEntry{Query: query, ChatHistory: []ChatMessage{}}
		s.entries[query] = entry
	}

	entry.Results = record
	entry.UpdatedAt = time.Now()
	s.recency = moveToFront(s.recency, query)
	return nil
}

// SaveChatHistory replaces the chat transcript for a query, creating the
// entry with zero-value results if it does not exist yet.
func (s *InMemoryHistoryStorage) SaveChatHistory(ctx context.Context, query string, messages []ChatMessage) error {
	if query == "" {
		return ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[query]
	if !exists {
		entry = &HistoryEntry{Query: query}
		s.entries[query] = entry
	}

	entry.ChatHistory = append([]ChatMessage(nil), messages...)
	entry.UpdatedAt = time.Now()
	s.recency = moveToFront(s.recency, query)
	return nil
}

// GetResult returns the full history entry for a query without touching the
// recency index.
func (s *InMemoryHistoryStorage) GetResult(ctx context.Context, query string) (*HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[query]
	if !exists {
		return nil, false
	}

	copied := *entry
	copied.ChatHistory = append([]ChatMessage(nil), entry.ChatHistory...)
	return &copied, true
}

// GetChatHistory returns the chat transcript for a query.
func (s *InMemoryHistoryStorage) GetChatHistory(ctx context.Context, query string) ([]ChatMessage, bool) {
	entry, exists := s.GetResult(ctx, query)
	if !exists {
		return nil, false
	}
	return entry.ChatHistory, true
}

// ListHistory returns stored queries most recently updated first.
func (s *InMemoryHistoryStorage) ListHistory(ctx context.Context) []HistoryListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]HistoryListItem, 0, len(s.recency))
	for _, query := range s.recency {
		if entry, exists := s.entries[query]; exists {
			items = append(items, HistoryListItem{Query: query, UpdatedAt: entry.UpdatedAt})
		}
	}
	return items
}

// moveToFront returns the index with query as its first element, removing any
// earlier occurrence so each key appears at most once.
func moveToFront(index []string, query string) []string {
	out := make([]string, 0, len(index)+1)
	out = append(out, query)
	for _, q := range index {
		if q != query {
			out = append(out, q)
		}
	}
	return out
}
