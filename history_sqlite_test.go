package goask

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asklab/goask/observability"
)

func setupTestDB(t *testing.T) (*SQLiteHistoryStorage, func()) {
	tempFile, err := os.CreateTemp("", "search_history_test_*.db")
	require.NoError(t, err)
	tempFilePath := tempFile.Name()
	tempFile.Close()

	storage, err := NewSQLiteHistoryStorage(tempFilePath, observability.NewNullLogger())
	require.NoError(t, err)

	cleanup := func() {
		storage.db.Close()
		os.Remove(tempFilePath)
	}

	return storage, cleanup
}

func TestNewSQLiteHistoryStorage(t *testing.T) {
	tests := []struct {
		name         string
		databasePath string
		expectError  bool
	}{
		{
			name:         "Valid database path",
			databasePath: t.TempDir() + "/valid.db",
			expectError:  false,
		},
		{
			name:         "Invalid database path",
			databasePath: "/non/existent/directory/invalid.db",
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := NewSQLiteHistoryStorage(tt.databasePath, observability.NewNullLogger())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, storage)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, storage)
				if storage != nil {
					storage.db.Close()
					os.Remove(tt.databasePath)
				}
			}
		})
	}
}

func TestSQLiteHistoryStorage_InitSchema(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()

	var count int
	err := storage.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='search_history'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteHistoryStorage_SaveAndGetResult(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	record := sampleRecord("Use 35 Nm")
	require.NoError(t, storage.SaveResult(ctx, "flange torque", record))

	entry, exists := storage.GetResult(ctx, "flange torque")
	require.True(t, exists)
	assert.Equal(t, "flange torque", entry.Query)
	assert.Equal(t, record, entry.Results)
	assert.Empty(t, entry.ChatHistory)
	assert.False(t, entry.UpdatedAt.IsZero())
}

func TestSQLiteHistoryStorage_EmptyQueryRejected(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, storage.SaveResult(ctx, "", sampleRecord("a")), ErrEmptyQuery)
	assert.ErrorIs(t, storage.SaveChatHistory(ctx, "", nil), ErrEmptyQuery)
}

func TestSQLiteHistoryStorage_ResultOverwritePreservesChat(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, storage.SaveResult(ctx, "q", sampleRecord("first")))

	messages := []ChatMessage{
		{Role: UserRole, Content: "q"},
		{Role: AssistantRole, Content: "first"},
	}
	require.NoError(t, storage.SaveChatHistory(ctx, "q", messages))
	require.NoError(t, storage.SaveResult(ctx, "q", sampleRecord("second")))

	entry, exists := storage.GetResult(ctx, "q")
	require.True(t, exists)
	assert.Equal(t, "second", entry.Results.Answer)
	assert.Equal(t, messages, entry.ChatHistory)
}

func TestSQLiteHistoryStorage_SaveChatHistoryCreatesRow(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	messages := []ChatMessage{{Role: UserRole, Content: "hello"}}
	require.NoError(t, storage.SaveChatHistory(ctx, "fresh", messages))

	entry, exists := storage.GetResult(ctx, "fresh")
	require.True(t, exists)
	assert.Equal(t, "", entry.Results.Answer)
	assert.Empty(t, entry.Results.Sources)
	assert.Equal(t, messages, entry.ChatHistory)
}

func TestSQLiteHistoryStorage_RecencyOrder(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, storage.SaveResult(ctx, "q1", sampleRecord("a1")))
	require.NoError(t, storage.SaveResult(ctx, "q2", sampleRecord("a2")))
	require.NoError(t, storage.SaveResult(ctx, "q1", sampleRecord("a1-bis")))

	items := storage.ListHistory(ctx)
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0].Query)
	assert.Equal(t, "q2", items[1].Query)
}

func TestSQLiteHistoryStorage_GetResultUnknownQuery(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()

	entry, exists := storage.GetResult(context.Background(), "never asked")
	assert.False(t, exists)
	assert.Nil(t, entry)
}

func TestSQLiteHistoryStorage_SurvivesReopen(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := tempDir + "/history.db"
	ctx := context.Background()

	first, err := NewSQLiteHistoryStorage(dbPath, observability.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, first.SaveResult(ctx, "q1", sampleRecord("a1")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteHistoryStorage(dbPath, observability.NewNullLogger())
	require.NoError(t, err)
	defer second.Close()

	entry, exists := second.GetResult(ctx, "q1")
	require.True(t, exists)
	assert.Equal(t, "a1", entry.Results.Answer)
}
