package goask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asklab/goask/observability"
)

// failingKeyValue rejects every write, simulating a full or disabled medium.
type failingKeyValue struct {
	values map[string]string
}

func (f *failingKeyValue) Get(key string) (string, bool) {
	value, exists := f.values[key]
	return value, exists
}

func (f *failingKeyValue) Set(key, value string) error {
	return errors.New("storage quota exceeded")
}

func TestKVHistoryStorage_SaveAndGet(t *testing.T) {
	storage := NewKVHistoryStorage(NewInMemoryKeyValue(), observability.NewNullLogger())
	ctx := context.Background()

	record := sampleRecord("Use 35 Nm")
	require.NoError(t, storage.SaveResult(ctx, "flange torque", record))

	entry, exists := storage.GetResult(ctx, "flange torque")
	require.True(t, exists)
	assert.Equal(t, record, entry.Results)

	items := storage.ListHistory(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "flange torque", items[0].Query)
}

func TestKVHistoryStorage_RoundTripThroughMedium(t *testing.T) {
	medium := NewInMemoryKeyValue()
	ctx := context.Background()

	first := NewKVHistoryStorage(medium, observability.NewNullLogger())
	require.NoError(t, first.SaveResult(ctx, "q1", sampleRecord("a1")))
	require.NoError(t, first.SaveResult(ctx, "q2", sampleRecord("a2")))
	require.NoError(t, first.SaveChatHistory(ctx, "q1", []ChatMessage{
		{Role: UserRole, Content: "q1"},
		{Role: AssistantRole, Content: "a1", Sources: map[string][]PageRef{
			"manual.pdf": {{Page: 3, Relevance: 0.7}},
		}},
	}))

	// a fresh store over the same medium sees identical state
	second := NewKVHistoryStorage(medium, observability.NewNullLogger())

	for _, query := range []string{"q1", "q2"} {
		want, exists := first.GetResult(ctx, query)
		require.True(t, exists)
		got, exists := second.GetResult(ctx, query)
		require.True(t, exists)
		assert.Equal(t, want.Results, got.Results)
		assert.Equal(t, want.ChatHistory, got.ChatHistory)
		assert.Equal(t, want.UpdatedAt.Unix(), got.UpdatedAt.Unix())
	}

	wantOrder := first.ListHistory(ctx)
	gotOrder := second.ListHistory(ctx)
	require.Len(t, gotOrder, len(wantOrder))
	for i := range wantOrder {
		assert.Equal(t, wantOrder[i].Query, gotOrder[i].Query)
	}
}

func TestKVHistoryStorage_MoveToFrontSurvivesReload(t *testing.T) {
	medium := NewInMemoryKeyValue()
	ctx := context.Background()

	first := NewKVHistoryStorage(medium, observability.NewNullLogger())
	require.NoError(t, first.SaveResult(ctx, "q1", sampleRecord("a1")))
	require.NoError(t, first.SaveResult(ctx, "q2", sampleRecord("a2")))
	require.NoError(t, first.SaveResult(ctx, "q1", sampleRecord("a1-bis")))

	second := NewKVHistoryStorage(medium, observability.NewNullLogger())
	items := second.ListHistory(ctx)
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0].Query)
	assert.Equal(t, "q2", items[1].Query)
}

func TestKVHistoryStorage_WriteFailureDegradesToNoOp(t *testing.T) {
	medium := &failingKeyValue{values: map[string]string{}}
	storage := NewKVHistoryStorage(medium, observability.NewNullLogger())
	ctx := context.Background()

	// the medium rejects every write, but the caller never sees it
	require.NoError(t, storage.SaveResult(ctx, "q1", sampleRecord("a1")))

	// the in-memory view stays authoritative for the session
	entry, exists := storage.GetResult(ctx, "q1")
	require.True(t, exists)
	assert.Equal(t, "a1", entry.Results.Answer)

	// nothing was durably stored
	_, exists = medium.Get(kvEntryKeyPrefix + "q1")
	assert.False(t, exists)
}

func TestKVHistoryStorage_MalformedEntryTreatedAsAbsent(t *testing.T) {
	medium := NewInMemoryKeyValue()
	require.NoError(t, medium.Set(kvRecencyIndexKey, `["good","broken"]`))
	require.NoError(t, medium.Set(kvEntryKeyPrefix+"good",
		`{"query":"good","results":{"answer":"fine","sources":{}},"chat_history":[],"updated_at":"2026-01-02T15:04:05Z"}`))
	require.NoError(t, medium.Set(kvEntryKeyPrefix+"broken", `{not json`))

	storage := NewKVHistoryStorage(medium, observability.NewNullLogger())
	ctx := context.Background()

	entry, exists := storage.GetResult(ctx, "good")
	require.True(t, exists)
	assert.Equal(t, "fine", entry.Results.Answer)

	_, exists = storage.GetResult(ctx, "broken")
	assert.False(t, exists)

	items := storage.ListHistory(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].Query)
}

func TestKVHistoryStorage_MalformedIndexStartsEmpty(t *testing.T) {
	medium := NewInMemoryKeyValue()
	require.NoError(t, medium.Set(kvRecencyIndexKey, `not an array`))

	storage := NewKVHistoryStorage(medium, observability.NewNullLogger())
	assert.Empty(t, storage.ListHistory(context.Background()))
}
