package goask

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/asklab/goask/observability"
)

// KeyValue is the narrow contract of a synchronous persistent key-value
// medium, in the spirit of browser local storage: string keys, string values,
// values survive restarts within the same profile.
type KeyValue interface {
	// Get returns the value stored under key, or false when absent.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
}

// InMemoryKeyValue is a KeyValue backed by a plain map. It is mostly useful
// for tests and as a building block for persistent media.
type InMemoryKeyValue struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewInMemoryKeyValue creates a new empty InMemoryKeyValue
func NewInMemoryKeyValue() *InMemoryKeyValue {
	return &InMemoryKeyValue{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *InMemoryKeyValue) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// Set stores value under key.
func (m *InMemoryKeyValue) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

const (
	kvEntryKeyPrefix  = "goask:entry:"
	kvRecencyIndexKey = "goask:history-index"
)

// KVHistoryStorage implements HistoryStorage on top of any KeyValue medium.
// Each history entry is serialized as one JSON blob under a query-derived
// key, and the recency index is kept under a single separate key.
//
// The medium is read once at construction to rebuild the in-memory mirror;
// after that every write goes through to the medium best-effort. A rejected
// write (quota, serialization, disabled storage) is logged and ignored, so
// the mirror stays authoritative for the current session even when
// durability is lost.
type KVHistoryStorage struct {
	medium KeyValue
	mirror *InMemoryHistoryStorage
	logger observability.Logger
	mu     sync.Mutex
}

// NewKVHistoryStorage creates a KVHistoryStorage over the given medium and
// reloads any previously persisted history from it.
//
// Example usage:
//
//	kv, err := goask.NewFileKeyValue("/var/lib/goask/history.json", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := goask.NewKVHistoryStorage(kv, logger)
func NewKVHistoryStorage(medium KeyValue, logger observability.Logger) *KVHistoryStorage {
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	storage := &KVHistoryStorage{
		medium: medium,
		mirror: NewInMemoryHistoryStorage(),
		logger: logger,
	}
	storage.reload()
	return storage
}

// reload rebuilds the in-memory mirror from the medium. Entries that fail to
// decode are skipped, same as absent keys.
func (s *KVHistoryStorage) reload() {
	raw, exists := s.medium.Get(kvRecencyIndexKey)
	if !exists {
		return
	}

	var index []string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		s.logger.WithErr(err).Warn("history index is malformed, starting empty")
		return
	}

	// Walk the index back to front so that replaying writes through the
	// mirror reproduces the persisted recency order.
	for i := len(index) - 1; i >= 0; i-- {
		query := index[i]
		blob, exists := s.medium.Get(kvEntryKeyPrefix + query)
		if !exists {
			continue
		}

		var entry HistoryEntry
		if err := json.Unmarshal([]byte(blob), &entry); err != nil {
			s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
				Warn("skipping malformed history entry")
			continue
		}

		s.mirror.mu.Lock()
		s.mirror.entries[query] = &entry
		s.mirror.recency = moveToFront(s.mirror.recency, query)
		s.mirror.mu.Unlock()
	}
}

// SaveResult upserts the answer record for a query and persists the entry
// and index to the medium.
func (s *KVHistoryStorage) SaveResult(ctx context.Context, query string, record AnswerRecord) error {
	if err := s.mirror.SaveResult(ctx, query, record); err != nil {
		return err
	}
	s.persist(ctx, query)
	return nil
}

// SaveChatHistory replaces the chat transcript for a query and persists the
// entry and index to the medium.
func (s *KVHistoryStorage) SaveChatHistory(ctx context.Context, query string, messages []ChatMessage) error {
	if err := s.mirror.SaveChatHistory(ctx, query, messages); err != nil {
		return err
	}
	s.persist(ctx, query)
	return nil
}

// GetResult returns the full history entry for a query.
func (s *KVHistoryStorage) GetResult(ctx context.Context, query string) (*HistoryEntry, bool) {
	return s.mirror.GetResult(ctx, query)
}

// GetChatHistory returns the chat transcript for a query.
func (s *KVHistoryStorage) GetChatHistory(ctx context.Context, query string) ([]ChatMessage, bool) {
	return s.mirror.GetChatHistory(ctx, query)
}

// ListHistory returns stored queries most recently updated first.
func (s *KVHistoryStorage) ListHistory(ctx context.Context) []HistoryListItem {
	return s.mirror.ListHistory(ctx)
}

// persist writes the entry for query and the recency index through to the
// medium. Failures are logged and swallowed.
func (s *KVHistoryStorage) persist(ctx context.Context, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.mirror.GetResult(ctx, query)
	if !exists {
		return
	}

	blob, err := json.Marshal(entry)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Error("failed to serialize history entry")
		return
	}

	if err := s.medium.Set(kvEntryKeyPrefix+query, string(blob)); err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Error("failed to persist history entry")
		return
	}

	items := s.mirror.ListHistory(ctx)
	index := make([]string, 0, len(items))
	for _, item := range items {
		index = append(index, item.Query)
	}

	indexBlob, err := json.Marshal(index)
	if err != nil {
		s.logger.WithErr(err).Error("failed to serialize history index")
		return
	}

	if err := s.medium.Set(kvRecencyIndexKey, string(indexBlob)); err != nil {
		s.logger.WithErr(err).Error("failed to persist history index")
	}
}
