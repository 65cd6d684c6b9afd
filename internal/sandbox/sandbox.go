// Package sandbox is the HTTP client for an external execution sandbox.
// The gateway never runs agent commands in its own process: anything real
// happens behind this client, and when no sandbox is reachable the
// dispatcher falls back to clearly labeled simulation.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable reports that no sandbox can take the work: none is
// configured, the service is unreachable, or it answered with a server
// error. Callers treat it as the signal to simulate instead.
var ErrUnavailable = errors.New("sandbox unavailable")

// ExecRequest is one command for the sandbox to run.
type ExecRequest struct {
	Command    string         `json:"command"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
}

// ExecResult is what the sandbox reports back.
type ExecResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Client talks to one sandbox service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient points at a sandbox service. An empty baseURL yields a client
// whose Exec always reports ErrUnavailable, which keeps the wiring
// uniform when no sandbox is configured.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Exec runs one command on the sandbox.
//
// Transport failures and 5xx answers come back wrapped in ErrUnavailable.
// A 4xx answer means the sandbox looked at the command and said no; that
// is an execution failure, not unavailability, and must not be simulated
// away.
func (c *Client) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if c.baseURL == "" {
		return ExecResult{}, ErrUnavailable
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ExecResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return ExecResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return ExecResult{}, fmt.Errorf("%w: sandbox answered %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ExecResult{}, fmt.Errorf("sandbox rejected the command: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result ExecResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ExecResult{}, fmt.Errorf("sandbox answered with a malformed body: %w", err)
	}
	return result, nil
}
