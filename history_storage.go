package goask

import (
	"context"
)

// HistoryStorage defines the interface for persistent search-history storage.
//
// All implementations share the same failure semantics: persistence is
// best-effort. A write that the storage medium rejects is logged and treated
// as a no-op; it never propagates to the caller and the in-memory view stays
// authoritative for the current session. A read that fails or finds malformed
// data is indistinguishable from an absent key. The only errors the Save
// methods return are contract violations (empty query).
//
// Implementations keep a recency index over query keys: every write moves the
// written key to the front, each key appears at most once, and reads never
// reorder it. The store is unbounded; no eviction is performed.
type HistoryStorage interface {
	// SaveResult upserts the answer record for a query, preserving any
	// existing follow-up chat history and moving the query to the front of
	// the recency index.
	SaveResult(ctx context.Context, query string, record AnswerRecord) error

	// SaveChatHistory replaces the follow-up chat transcript for a query.
	// If no entry exists yet, one is created with zero-value results.
	SaveChatHistory(ctx context.Context, query string, messages []ChatMessage) error

	// GetResult returns the full history entry for a query, or false when
	// the query is unknown. Lookups do not affect recency order.
	GetResult(ctx context.Context, query string) (*HistoryEntry, bool)

	// GetChatHistory returns the follow-up chat transcript for a query, or
	// false when the query is unknown.
	GetChatHistory(ctx context.Context, query string) ([]ChatMessage, bool)

	// ListHistory returns one item per stored query, most recently
	// updated first.
	ListHistory(ctx context.Context) []HistoryListItem
}
