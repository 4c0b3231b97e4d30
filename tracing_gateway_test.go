package goask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAsker struct {
	record AnswerRecord
	err    error
	resets int
	asked  []string
}

func (s *stubAsker) Ask(ctx context.Context, question string, opts ...AskOption) (AnswerRecord, error) {
	s.asked = append(s.asked, question)
	return s.record, s.err
}

func (s *stubAsker) ResetConversation() {
	s.resets++
}

func TestTracingQueryGateway_PassThrough(t *testing.T) {
	stub := &stubAsker{record: AnswerRecord{Answer: "traced", Sources: map[string][]PageRef{}}}
	traced := NewTracingQueryGateway(stub)

	record, err := traced.Ask(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "traced", record.Answer)
	assert.Equal(t, []string{"question"}, stub.asked)

	traced.ResetConversation()
	assert.Equal(t, 1, stub.resets)
}

func TestTracingQueryGateway_PropagatesError(t *testing.T) {
	wantErr := errors.New("remote down")
	stub := &stubAsker{err: wantErr}
	traced := NewTracingQueryGateway(stub)

	_, err := traced.Ask(context.Background(), "question")
	assert.ErrorIs(t, err, wantErr)
}
