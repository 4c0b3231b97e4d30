package goask

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// RequestStrategy describes one way of framing the HTTP request sent to the
// remote answering endpoint. Strategies carry the same payload and differ
// only in headers and content type; they exist because some deployments sit
// behind proxies or CORS policies that reject particular request shapes.
//
// The gateway walks its strategy list sequentially, once per Ask call, and
// stops at the first strategy that yields a usable response. This is a
// compatibility shim, not a reliability mechanism: there is no backoff, no
// timer-based retry, and no distinction between a rejected request shape and
// a service outage.
type RequestStrategy struct {
	// Name identifies the strategy in logs and traces
	Name string

	// ContentType is sent as the Content-Type header; empty means the
	// header is omitted entirely.
	ContentType string

	// Headers are additional headers set on the request
	Headers map[string]string
}

// newRequest builds the HTTP request for this strategy.
func (st RequestStrategy) newRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if st.ContentType != "" {
		req.Header.Set("Content-Type", st.ContentType)
	}
	for k, v := range st.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// DefaultRequestStrategies returns the built-in strategy list, ordered from
// the fully declared JSON request down to the barest framing some
// intermediaries insist on.
func DefaultRequestStrategies() []RequestStrategy {
	return []RequestStrategy{
		{
			Name:        "json",
			ContentType: "application/json",
			Headers:     map[string]string{"Accept": "application/json"},
		},
		{
			// Plain-text framing keeps the request a CORS "simple
			// request", which some gateways require.
			Name:        "plain-text",
			ContentType: "text/plain;charset=UTF-8",
		},
		{
			Name: "bare",
		},
	}
}
