// Package verify implements the verification adapter: it submits deployed
// source to the block explorer and polls until a terminal outcome or the
// 5-minute ceiling (spec.md §4.6). A verification failure never invalidates
// the DeploymentRecord it follows; it is reported as a non-fatal Outcome.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/hyperion-agent/contractforge/internal/retry"
)

// Outcome is one of the four terminal states spec.md §4.6 names.
type Outcome string

const (
	OutcomeVerified        Outcome = "Verified"
	OutcomeAlreadyVerified Outcome = "AlreadyVerified"
	OutcomeMismatch        Outcome = "Mismatch"
	OutcomeTimeout         Outcome = "Timeout"

	// OutcomeSkipped is not part of spec.md §4.6's terminal-outcome set; it
	// records the explicit --no-verify bypass so the workflow context never
	// shows a silent absence where an outcome is expected (spec.md §4.9).
	OutcomeSkipped Outcome = "Skipped"
)

// Request is everything the explorer's verify endpoint requires.
type Request struct {
	Address             string
	Source              string
	CompilerVersion     string
	ConstructorArgsABI  string // ABI-encoded constructor args, hex
	OptimizationEnabled bool
}

// Result is the outcome of a verification attempt.
type Result struct {
	Outcome Outcome
	GUID    string
	Detail  string
}

type submitResponse struct {
	GUID string `json:"guid"`
}

type statusResponse struct {
	Status string `json:"status"` // "pending", "verified", "already_verified", "mismatch"
	Detail string `json:"detail"`
}

// Verifier drives the explorer's submit-then-poll verification protocol.
type Verifier struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	totalBudget time.Duration
}

// NewVerifier builds a Verifier against baseURL. A zero totalBudget defaults
// to the spec's 5-minute ceiling.
func NewVerifier(baseURL, apiKey string, httpClient *http.Client, totalBudget time.Duration) *Verifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if totalBudget <= 0 {
		totalBudget = 5 * time.Minute
	}
	return &Verifier{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient, totalBudget: totalBudget}
}

// Verify submits req and polls for a terminal outcome, bounded by the
// configured total budget (spec.md §4.6 steps 1-4).
func (v *Verifier) Verify(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.totalBudget)
	defer cancel()

	guid, err := v.submit(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("submit verification: %w", err)
	}

	attempt := 0
	for {
		status, err := v.pollOnce(ctx, guid)
		if err != nil {
			return Result{}, fmt.Errorf("poll verification status: %w", err)
		}

		switch status.Status {
		case "verified":
			return Result{Outcome: OutcomeVerified, GUID: guid, Detail: status.Detail}, nil
		case "already_verified":
			return Result{Outcome: OutcomeAlreadyVerified, GUID: guid, Detail: status.Detail}, nil
		case "mismatch":
			return Result{Outcome: OutcomeMismatch, GUID: guid, Detail: status.Detail}, nil
		}

		backoff := retry.Backoff(attempt, time.Second, 30*time.Second)
		select {
		case <-ctx.Done():
			return Result{Outcome: OutcomeTimeout, GUID: guid}, nil
		case <-time.After(backoff):
			attempt++
		}
	}
}

func (v *Verifier) submit(ctx context.Context, req Request) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{
		"address":             req.Address,
		"compilerVersion":     req.CompilerVersion,
		"constructorArguments": req.ConstructorArgsABI,
		"optimizationUsed":    boolToFlag(req.OptimizationEnabled),
	}
	for k, val := range fields {
		if err := w.WriteField(k, val); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("sourceCode", "source.sol")
	if err != nil {
		return "", fmt.Errorf("create source part: %w", err)
	}
	if _, err := part.Write([]byte(req.Source)); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL, err := url.JoinPath(v.baseURL, "/api/verify/submit")
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	if v.apiKey != "" {
		httpReq.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("explorer returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out submitResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	return out.GUID, nil
}

func (v *Verifier) pollOnce(ctx context.Context, guid string) (statusResponse, error) {
	reqURL, err := url.JoinPath(v.baseURL, "/api/verify/status/"+guid)
	if err != nil {
		return statusResponse{}, fmt.Errorf("build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return statusResponse{}, fmt.Errorf("build request: %w", err)
	}
	if v.apiKey != "" {
		httpReq.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return statusResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return statusResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return statusResponse{}, fmt.Errorf("explorer returned %d: %s", resp.StatusCode, string(body))
	}

	var out statusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return statusResponse{}, fmt.Errorf("parse status response: %w", err)
	}
	return out, nil
}

func boolToFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
