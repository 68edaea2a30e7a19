package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDelegator delegates tasks to a worker endpoint over HTTP. The
// endpoint accepts a DelegationRequest as JSON and responds with a
// DelegationResult.
type HTTPDelegator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDelegator creates a delegator for the given worker endpoint. The
// underlying client carries no timeout of its own; callers bound each
// delegation through the request context.
func NewHTTPDelegator(endpoint string) *HTTPDelegator {
	return &HTTPDelegator{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// Delegate posts the task to the worker endpoint and decodes the result
func (d *HTTPDelegator) Delegate(ctx context.Context, req DelegationRequest) (*DelegationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delegation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create delegation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("delegation call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("worker endpoint returned %d: %s", resp.StatusCode, string(snippet))
	}

	var result DelegationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode delegation result: %w", err)
	}

	if result.Status == "" {
		result.Status = DelegationSuccess
	}
	return &result, nil
}

// WithTimeout returns a copy of the delegator whose HTTP client enforces
// the given timeout in addition to any context deadline
func (d *HTTPDelegator) WithTimeout(timeout time.Duration) *HTTPDelegator {
	return &HTTPDelegator{
		endpoint: d.endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}
