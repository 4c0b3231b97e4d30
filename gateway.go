package goask

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/asklab/goask/observability"
)

const (
	// DefaultTopK is the result-count hint sent with every question when
	// the gateway config leaves TopK unset.
	DefaultTopK = 5

	// NoAnswerPlaceholder is returned as the answer text when the remote
	// service responds successfully but without an answer field.
	NoAnswerPlaceholder = "No answer available."

	// maxResponseBodySize bounds how much of a response body is read.
	maxResponseBodySize = 10 << 20
)

// RemoteServiceUnavailableError is returned by Ask when every request
// strategy in the gateway's list has failed. LastErr is the error from the
// final attempt.
type RemoteServiceUnavailableError struct {
	Attempts int
	LastErr  error
}

func (e *RemoteServiceUnavailableError) Error() string {
	return fmt.Sprintf("remote answering service unavailable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RemoteServiceUnavailableError) Unwrap() error {
	return e.LastErr
}

// QueryGatewayConfig holds configuration for QueryGateway.
type QueryGatewayConfig struct {
	// Endpoint is the URL of the remote answering service. Required.
	Endpoint string

	// TopK is the result-count hint sent with every question.
	// Defaults to DefaultTopK.
	TopK int

	// HTTPClient performs the requests. Defaults to http.DefaultClient;
	// timeouts are whatever the client enforces, the gateway adds none.
	HTTPClient *http.Client

	// Strategies is the ordered request-framing list tried on each Ask.
	// Defaults to DefaultRequestStrategies().
	Strategies []RequestStrategy

	// Limiter optionally rate-limits Ask calls client-side. The limiter
	// is consulted once per logical Ask, before the first strategy.
	Limiter *rate.Limiter

	// Logger receives strategy fallback and failure logs.
	// Defaults to a NullLogger.
	Logger observability.Logger
}

// QueryGateway performs question/answer round trips against a remote
// knowledge-base service and tracks the server-issued conversation handle in
// an explicit ConversationSession.
//
// Example usage:
//
//	gateway, err := goask.NewQueryGateway(goask.QueryGatewayConfig{
//	    Endpoint: "https://kb.example.com/api/ask",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	record, err := gateway.Ask(ctx, "what torque for the flange bolts?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(record.Answer)
type QueryGateway struct {
	endpoint   string
	topK       int
	httpClient *http.Client
	strategies []RequestStrategy
	limiter    *rate.Limiter
	logger     observability.Logger
	session    *ConversationSession
}

// NewQueryGateway creates a new QueryGateway with the specified configuration.
func NewQueryGateway(config QueryGatewayConfig) (*QueryGateway, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if len(config.Strategies) == 0 {
		config.Strategies = DefaultRequestStrategies()
	}
	if config.Logger == nil {
		config.Logger = observability.NewNullLogger()
	}

	return &QueryGateway{
		endpoint:   config.Endpoint,
		topK:       config.TopK,
		httpClient: config.HTTPClient,
		strategies: config.Strategies,
		limiter:    config.Limiter,
		logger:     config.Logger,
		session:    NewConversationSession(),
	}, nil
}

// Session returns the gateway's default conversation session.
func (g *QueryGateway) Session() *ConversationSession {
	return g.session
}

// ResetConversation clears the default session's conversation id so the next
// Ask starts a fresh conversation. Idempotent.
func (g *QueryGateway) ResetConversation() {
	g.session.Reset()
}

type askOptions struct {
	conversationID string
	explicit       bool
	session        *ConversationSession
}

// AskOption customizes a single Ask call.
type AskOption func(*askOptions)

// WithConversationID pins the conversation id sent with this call,
// overriding whatever the session currently holds. The session still adopts
// the id the service returns.
func WithConversationID(id string) AskOption {
	return func(o *askOptions) {
		o.conversationID = id
		o.explicit = true
	}
}

// WithSession routes this call through the given session instead of the
// gateway's default one, allowing independent concurrent conversations.
func WithSession(session *ConversationSession) AskOption {
	return func(o *askOptions) {
		o.session = session
	}
}

type askRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type askResponse struct {
	Answer         *string              `json:"answer"`
	Sources        map[string][]PageRef `json:"sources"`
	ConversationID *string              `json:"conversation_id"`
}

// Ask sends one question to the remote service and returns its answer. The
// request carries the session's conversation id when one is held, so the
// service continues the conversation; WithConversationID overrides it for
// this call. Strategies from the gateway's list are tried in order until one
// yields a valid response; if all fail, a *RemoteServiceUnavailableError is
// returned.
//
// Two Asks in flight against the same session race to set the conversation
// id; whichever response arrives last wins. Use separate sessions when that
// matters.
func (g *QueryGateway) Ask(ctx context.Context, question string, opts ...AskOption) (AnswerRecord, error) {
	if question == "" {
		return AnswerRecord{}, ErrEmptyQuestion
	}

	options := askOptions{session: g.session}
	for _, opt := range opts {
		opt(&options)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return AnswerRecord{}, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	conversationID := options.conversationID
	if !options.explicit {
		conversationID = options.session.ConversationID()
	}

	body, err := json.Marshal(askRequest{
		Question:       question,
		TopK:           g.topK,
		ConversationID: conversationID,
	})
	if err != nil {
		return AnswerRecord{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	requestID := uuid.New().String()
	logger := g.logger.WithFields(map[string]interface{}{"request_id": requestID})

	var lastErr error
	for _, strategy := range g.strategies {
		record, err := g.tryStrategy(ctx, strategy, body, requestID)
		if err != nil {
			logger.WithFields(map[string]interface{}{"strategy": strategy.Name}).WithErr(err).
				Warn("request strategy failed, trying next")
			lastErr = err
			continue
		}

		if record.ConversationID != "" {
			options.session.SetConversationID(record.ConversationID)
		}
		return record, nil
	}

	return AnswerRecord{}, &RemoteServiceUnavailableError{
		Attempts: len(g.strategies),
		LastErr:  lastErr,
	}
}

// tryStrategy performs one request with the given framing and parses the
// response, applying the documented defaults for absent fields.
func (g *QueryGateway) tryStrategy(ctx context.Context, strategy RequestStrategy, body []byte, requestID string) (AnswerRecord, error) {
	req, err := strategy.newRequest(ctx, g.endpoint, body)
	if err != nil {
		return AnswerRecord{}, err
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return AnswerRecord{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return AnswerRecord{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AnswerRecord{}, fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := validateAskResponse(respBody); err != nil {
		return AnswerRecord{}, err
	}

	var parsed askResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return AnswerRecord{}, fmt.Errorf("failed to parse response: %w", err)
	}

	record := AnswerRecord{
		Answer:  NoAnswerPlaceholder,
		Sources: map[string][]PageRef{},
	}
	if parsed.Answer != nil {
		record.Answer = *parsed.Answer
	}
	if parsed.Sources != nil {
		record.Sources = parsed.Sources
	}
	if parsed.ConversationID != nil {
		record.ConversationID = *parsed.ConversationID
	}

	return record, nil
}
