package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devquest/collab/internal/slogging"
)

// ExecutionResult is the sandbox's answer to an execute_code request
type ExecutionResult struct {
	Output        string `json:"output"`
	ExecutionTime int64  `json:"execution_time_ms"`
	MemoryUsed    int64  `json:"memory_used_kb"`
	Status        string `json:"status"`
}

// CodeExecutor runs code in the external sandbox. Failures degrade to a
// room-wide execution_error event; they never fail the session.
type CodeExecutor interface {
	Execute(ctx context.Context, code string, language Language) (*ExecutionResult, error)
}

// HTTPExecutor calls the sandbox service over HTTP
type HTTPExecutor struct {
	url    string
	client *http.Client
}

// NewHTTPExecutor creates a sandbox client for the given endpoint
func NewHTTPExecutor(url string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// Execute posts the code to the sandbox and decodes the result
func (e *HTTPExecutor) Execute(ctx context.Context, code string, language Language) (*ExecutionResult, error) {
	logger := slogging.Get()

	body, err := json.Marshal(executeRequest{Code: code, Language: language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		logger.Error("Sandbox request failed: %v", err)
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		logger.Error("Sandbox returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("sandbox returned status %d", resp.StatusCode)
	}

	var result ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sandbox response: %w", err)
	}
	return &result, nil
}
