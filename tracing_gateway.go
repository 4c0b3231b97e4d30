package goask

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/asklab/goask/observability"
)

// Asker is the narrow interface the UI layer consumes: ask a question, reset
// the active conversation. QueryGateway implements it; decorators wrap it.
type Asker interface {
	Ask(ctx context.Context, question string, opts ...AskOption) (AnswerRecord, error)
	ResetConversation()
}

// TracingQueryGateway implements the decorator pattern for tracing
type TracingQueryGateway struct {
	gateway Asker
}

// NewTracingQueryGateway creates a new tracing decorator for any Asker
func NewTracingQueryGateway(gateway Asker) *TracingQueryGateway {
	return &TracingQueryGateway{
		gateway: gateway,
	}
}

// Ask implements the Asker interface with added tracing
func (t *TracingQueryGateway) Ask(ctx context.Context, question string, opts ...AskOption) (AnswerRecord, error) {
	ctx, span := observability.StartSpan(ctx, "QueryGateway.Ask")
	defer span.End()

	startTime := time.Now()

	record, err := t.gateway.Ask(ctx, question, opts...)
	if err != nil {
		span.RecordError(err)
		return AnswerRecord{}, err
	}

	span.SetAttributes(
		attribute.Int("question_length", len(question)),
		attribute.Int("answer_length", len(record.Answer)),
		attribute.Int("source_count", len(record.Sources)),
		attribute.Bool("conversation_continued", record.ConversationID != ""),
		attribute.Float64("completion_time", time.Since(startTime).Seconds()),
	)

	return record, nil
}

// ResetConversation implements the Asker interface
func (t *TracingQueryGateway) ResetConversation() {
	t.gateway.ResetConversation()
}
