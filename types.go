// Package goask is a client library for knowledge-base question answering
// services. It provides a query gateway that talks to a remote Q&A endpoint
// and tracks the server-issued conversation handle across calls, plus a
// persistent search-history store with a most-recent-first index, available
// with in-memory, key-value, SQLite and PostgreSQL backends.
package goask

import (
	"errors"
	"time"
)

// ChatMessageRole identifies the author of a chat message.
type ChatMessageRole string

const (
	// UserRole represents a message authored by the end user
	UserRole ChatMessageRole = "user"
	// AssistantRole represents a message authored by the answering service
	AssistantRole ChatMessageRole = "assistant"
)

var (
	// ErrEmptyQuery is returned when a history operation receives an empty query key
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrEmptyQuestion is returned when Ask receives an empty question
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// PageRef locates supporting text inside a source document.
type PageRef struct {
	// Page is the 1-based page number within the document
	Page int `json:"page"`
	// Relevance scores how strongly the page supports the answer
	Relevance float64 `json:"relevance"`
}

// AnswerRecord is the result of one question/answer round trip.
// Sources maps a document identifier to the pages the answer was grounded on.
type AnswerRecord struct {
	Answer  string               `json:"answer"`
	Sources map[string][]PageRef `json:"sources"`
	// ConversationID is the opaque session handle issued by the remote
	// service. Empty until the service assigns one.
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatMessage is a single turn in a follow-up conversation anchored to a
// search query. Sources is only set on assistant messages that cite documents.
type ChatMessage struct {
	Role    ChatMessageRole      `json:"role"`
	Content string               `json:"content"`
	Sources map[string][]PageRef `json:"sources,omitempty"`
}

// HistoryEntry is the cached state of one previously executed search: the
// last fetched answer plus any follow-up chat transcript.
type HistoryEntry struct {
	Query       string        `json:"query"`
	Results     AnswerRecord  `json:"results"`
	ChatHistory []ChatMessage `json:"chat_history"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// HistoryListItem is one element of the recency index returned by ListHistory.
type HistoryListItem struct {
	Query     string    `json:"query"`
	UpdatedAt time.Time `json:"updated_at"`
}
