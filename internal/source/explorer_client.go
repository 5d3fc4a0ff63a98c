package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	headerAPIKey    = "X-API-Key"
	headerUserAgent = "User-Agent"
	sdkUserAgent    = "contractforge-source-fetcher/1.0"
)

// explorerSourceResponse is the documented shape of a block-explorer
// "get verified source" response (spec.md §6 explorer HTTP contract).
type explorerSourceResponse struct {
	Verified        bool   `json:"verified"`
	SourceCode      string `json:"sourceCode"`
	CompilerVersion string `json:"compilerVersion"`
	ContractName    string `json:"contractName"`
}

// explorerCodeResponse is the documented shape of a "get deployed bytecode"
// response used for the bytecode-decompiled fallback.
type explorerCodeResponse struct {
	Bytecode string `json:"bytecode"`
}

// ExplorerClient talks to the configured block-explorer's documented REST
// endpoints. It is a thin HTTP client; the explorer service itself is an
// out-of-scope external collaborator (spec.md §1).
type ExplorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewExplorerClient constructs a client bound to baseURL, authenticated with
// apiKey if non-empty.
func NewExplorerClient(baseURL, apiKey string, httpClient *http.Client) *ExplorerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ExplorerClient{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

func (c *ExplorerClient) get(ctx context.Context, path string, result interface{}) (int, error) {
	reqURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return 0, fmt.Errorf("build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	req.Header.Set(headerUserAgent, sdkUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("explorer returned %d: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return resp.StatusCode, fmt.Errorf("parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// GetVerifiedSource fetches the verified source for an address. found is
// false (with no error) on a 404 or an unverified-contract response.
func (c *ExplorerClient) GetVerifiedSource(ctx context.Context, address string) (resp explorerSourceResponse, found bool, err error) {
	status, err := c.get(ctx, "/api/contract/"+address+"/source", &resp)
	if err != nil {
		return resp, false, err
	}
	if status == http.StatusNotFound || !resp.Verified {
		return resp, false, nil
	}
	return resp, true, nil
}

// GetDeployedBytecode fetches the runtime bytecode at address, for the
// BytecodeDecompiled fallback.
func (c *ExplorerClient) GetDeployedBytecode(ctx context.Context, address string) (string, bool, error) {
	var resp explorerCodeResponse
	status, err := c.get(ctx, "/api/contract/"+address+"/code", &resp)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound || resp.Bytecode == "" || resp.Bytecode == "0x" {
		return "", false, nil
	}
	return resp.Bytecode, true, nil
}
