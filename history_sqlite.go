package goask

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/asklab/goask/observability"
)

// SQLiteHistoryStorage is an SQLite implementation of HistoryStorage.
type SQLiteHistoryStorage struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger observability.Logger
}

// NewSQLiteHistoryStorage creates a new instance of SQLiteHistoryStorage.
// It takes the path to the SQLite database file.
func NewSQLiteHistoryStorage(databasePath string, logger observability.Logger) (*SQLiteHistoryStorage, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &SQLiteHistoryStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

// initSchema creates the necessary table if it doesn't exist
func (s *SQLiteHistoryStorage) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createHistoryTableSQL := `
    CREATE TABLE IF NOT EXISTS search_history (
        query TEXT PRIMARY KEY,
        answer TEXT NOT NULL DEFAULT '',
        sources TEXT NOT NULL DEFAULT '{}',
        chat_history TEXT NOT NULL DEFAULT '[]',
        conversation_id TEXT NOT NULL DEFAULT '',
        updated_at DATETIME NOT NULL,
        recency INTEGER NOT NULL
    );`

	createRecencyIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_search_history_recency ON search_history (recency);
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createHistoryTableSQL); err != nil {
		return fmt.Errorf("failed to create search_history table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createRecencyIndexSQL); err != nil {
		return fmt.Errorf("failed to create recency index: %w", err)
	}

	return tx.Commit()
}

// SaveResult upserts the answer record for a query. The chat transcript of an
// existing row is left untouched. Database failures are logged and swallowed.
func (s *SQLiteHistoryStorage) SaveResult(ctx context.Context, query string, record AnswerRecord) error {
	if query == "" {
		return ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sourcesJSON, err := json.Marshal(sourcesOrEmpty(record.Sources))
	if err != nil {
		s.logger.WithErr(err).Error("failed to marshal sources")
		return nil
	}

	upsertSQL := `
	INSERT INTO search_history (query, answer, sources, conversation_id, updated_at, recency)
	VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(recency), 0) + 1 FROM search_history))
	ON CONFLICT(query) DO UPDATE SET
		answer = excluded.answer,
		sources = excluded.sources,
		conversation_id = excluded.conversation_id,
		updated_at = excluded.updated_at,
		recency = excluded.recency;`

	_, err = s.db.ExecContext(ctx, upsertSQL,
		query, record.Answer, string(sourcesJSON), record.ConversationID, time.Now().UTC())
	if err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Error("failed to save result")
	}
	return nil
}

// SaveChatHistory replaces the chat transcript for a query, creating the row
// with an empty answer if it does not exist yet.
func (s *SQLiteHistoryStorage) SaveChatHistory(ctx context.Context, query string, messages []ChatMessage) error {
	if query == "" {
		return ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if messages == nil {
		messages = []ChatMessage{}
	}
	chatJSON, err := json.Marshal(messages)
	if err != nil {
		s.logger.WithErr(err).Error("failed to marshal chat history")
		return nil
	}

	upsertSQL := `
	INSERT INTO search_history (query, chat_history, updated_at, recency)
	VALUES (?, ?, ?, (SELECT COALESCE(MAX(recency), 0) + 1 FROM search_history))
	ON CONFLICT(query) DO UPDATE SET
		chat_history = excluded.chat_history,
		updated_at = excluded.updated_at,
		recency = excluded.recency;`

	_, err = s.db.ExecContext(ctx, upsertSQL, query, string(chatJSON), time.Now().UTC())
	if err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Error("failed to save chat history")
	}
	return nil
}

// GetResult returns the full history entry for a query. Scan or decode
// failures are treated the same as an unknown query.
func (s *SQLiteHistoryStorage) GetResult(ctx context.Context, query string) (*HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selectSQL := `
	SELECT answer, sources, chat_history, conversation_id, updated_at
	FROM search_history WHERE query = ?;`

	var (
		answer         string
		sourcesJSON    string
		chatJSON       string
		conversationID string
		updatedAt      time.Time
	)
	err := s.db.QueryRowContext(ctx, selectSQL, query).
		Scan(&answer, &sourcesJSON, &chatJSON, &conversationID, &updatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
				Warn("failed to read history entry")
		}
		return nil, false
	}

	entry := &HistoryEntry{
		Query: query,
		Results: AnswerRecord{
			Answer:         answer,
			ConversationID: conversationID,
		},
		UpdatedAt: updatedAt,
	}

	if err := json.Unmarshal([]byte(sourcesJSON), &entry.Results.Sources); err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Warn("stored sources are malformed")
		return nil, false
	}

	if err := json.Unmarshal([]byte(chatJSON), &entry.ChatHistory); err != nil {
		s.logger.WithFields(map[string]interface{}{"query": query}).WithErr(err).
			Warn("stored chat history is malformed")
		return nil, false
	}

	return entry, true
}

// GetChatHistory returns the chat transcript for a query.
func (s *SQLiteHistoryStorage) GetChatHistory(ctx context.Context, query string) ([]ChatMessage, bool) {
	entry, exists := s.GetResult(ctx, query)
	if !exists {
		return nil, false
	}
	return entry.ChatHistory, true
}

// ListHistory returns stored queries most recently updated first.
func (s *SQLiteHistoryStorage) ListHistory(ctx context.Context) []HistoryListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT query, updated_at FROM search_history ORDER BY recency DESC;`)
	if err != nil {
		s.logger.WithErr(err).Warn("failed to list history")
		return nil
	}
	defer rows.Close()

	var items []HistoryListItem
	for rows.Next() {
		var item HistoryListItem
		if err := rows.Scan(&item.Query, &item.UpdatedAt); err != nil {
			s.logger.WithErr(err).Warn("failed to scan history row")
			return nil
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		s.logger.WithErr(err).Warn("failed to iterate history rows")
		return nil
	}

	return items
}

// Close releases the underlying database handle.
func (s *SQLiteHistoryStorage) Close() error {
	return s.db.Close()
}

func sourcesOrEmpty(sources map[string][]PageRef) map[string][]PageRef {
	if sources == nil {
		return map[string][]PageRef{}
	}
	return sources
}
