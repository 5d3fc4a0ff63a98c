package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPCompleter is the Completer implementation talking to a hosted
// completion endpoint, grounded on internal/audit/llmrunner's request/
// response shape but bound to /v1/completions' "text" field directly
// rather than the audit runner's structured findings schema.
type HTTPCompleter struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete implements Completer.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	reqURL, err := url.JoinPath(c.BaseURL, "/v1/completions")
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.Model,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   8192,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out completionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.Text, nil
}
