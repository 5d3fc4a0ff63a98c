// Package llmrunner implements the LLM-based audit runner: it poses the
// source to a configured completion endpoint and parses a fixed JSON
// findings schema from the response (spec.md §4.2 "LLM runner", §9 "LLM
// audit runner JSON schema"). Grounded on the teacher SDK's doRequest/post
// HTTP client shape (url.JoinPath, json body, bearer/api-key header, status
// code triage).
package llmrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperion-agent/contractforge/internal/model"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	runnerUserAgent     = "contractforge-audit-llm/1.0"
)

// findingPayload is the fixed schema the LLM is instructed to emit, one
// object per suspected vulnerability.
type findingPayload struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	File       string `json:"file"`
	Evidence   string `json:"evidence"`
}

// responsePayload is the top-level shape: {"findings": [...]}.
type responsePayload struct {
	Findings []findingPayload `json:"findings"`
}

// completionRequest is the documented request body for the configured
// completion endpoint.
type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Runner calls a hosted completion endpoint and parses its response as the
// fixed findings schema. A malformed response contributes zero findings,
// matching the other runners' "silence is not failure" contract.
type Runner struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRunner builds a Runner bound to baseURL with the given model name.
func NewRunner(baseURL, apiKey, model string, httpClient *http.Client, logger *slog.Logger) *Runner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{baseURL: baseURL, apiKey: apiKey, model: model, httpClient: httpClient, logger: logger}
}

// Name identifies this runner as the llm detector.
func (r *Runner) Name() string { return "llm" }

// Run composes an audit prompt from src and asks the completion endpoint for
// a structured findings list.
func (r *Runner) Run(ctx context.Context, src model.ContractSource) ([]model.Finding, error) {
	prompt := buildAuditPrompt(src.Body)

	text, err := r.complete(ctx, prompt)
	if err != nil {
		return nil, model.NewError(model.KindLLMUnavailable, "llm completion request failed", err)
	}

	cleaned := stripCodeFence(text)

	var payload responsePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		r.logger.Warn("llm audit response was not valid JSON, treating as zero findings",
			slog.String("error", err.Error()))
		return nil, nil
	}

	findings := make([]model.Finding, 0, len(payload.Findings))
	for _, fp := range payload.Findings {
		kind, ok := model.NormalizeVulnKind(fp.Kind)
		if !ok {
			continue
		}
		findings = append(findings, model.Finding{
			Kind:       kind,
			Severity:   model.ParseSeverity(fp.Severity),
			Confidence: model.ParseDetectorConfidence(fp.Confidence),
			Location: &model.Location{
				File:   fp.File,
				Line:   fp.Line,
				Column: fp.Column,
			},
			Detector: "llm",
			Evidence: fp.Evidence,
		})
	}
	return findings, nil
}

func (r *Runner) complete(ctx context.Context, prompt string) (string, error) {
	reqURL, err := url.JoinPath(r.baseURL, "/v1/completions")
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	body, err := json.Marshal(completionRequest{
		Model:       r.model,
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set(headerAuthorization, "Bearer "+r.apiKey)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("User-Agent", runnerUserAgent)

	resp, err := r.httpClient.Do(req)
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

// buildAuditPrompt composes the fixed instruction asking for the findings
// schema, embedding the source verbatim.
func buildAuditPrompt(source string) string {
	var b strings.Builder
	b.WriteString("You are a Solidity security auditor. Review the following contract ")
	b.WriteString("and report vulnerabilities as JSON matching exactly this shape:\n")
	b.WriteString(`{"findings": [{"kind": string, "severity": string, "confidence": string, "line": int, "column": int, "file": string, "evidence": string}]}`)
	b.WriteString("\nRespond with JSON only, no prose.\n\n")
	b.WriteString(source)
	return b.String()
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ``` fence
// some completion models wrap structured output in.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
