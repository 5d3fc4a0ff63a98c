// Package source implements the source-fetching adapter: given an
// identifier (local path, explorer address, or raw source) it returns a
// model.ContractSource with correct provenance (spec.md §4.1).
package source

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/retry"
)

// Fetcher retrieves ContractSource values, falling back through explorer ->
// Sourcify -> bytecode-decompiled when the primary lookup has no source.
type Fetcher struct {
	Explorer  *ExplorerClient
	Sourcify  *ExplorerClient // secondary registry, same documented shape
	Policy    retry.Policy
}

// NewFetcher builds a Fetcher. sourcify may be nil if no secondary registry
// is configured, in which case that fallback is skipped.
func NewFetcher(explorer, sourcify *ExplorerClient) *Fetcher {
	return &Fetcher{Explorer: explorer, Sourcify: sourcify, Policy: retry.DefaultPolicy()}
}

// Fetch resolves identifier to a ContractSource or fails with
// model.KindSourceUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (model.ContractSource, error) {
	id := ParseIdentifier(raw)

	switch id.Kind {
	case IdentifierLocalFile:
		return f.fetchLocal(id.Path)
	case IdentifierRawSource:
		return f.fetchRaw(id.Raw)
	case IdentifierAddress:
		return f.fetchByAddress(ctx, id.Address)
	default:
		return model.ContractSource{}, model.NewError(model.KindSourceUnavailable, "unrecognized identifier", nil)
	}
}

func (f *Fetcher) fetchLocal(path string) (model.ContractSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ContractSource{}, model.NewError(model.KindSourceUnavailable,
			fmt.Sprintf("read local file %s", path), err)
	}
	if !utf8.Valid(data) {
		return model.ContractSource{}, model.NewError(model.KindSourceNotUTF8,
			fmt.Sprintf("%s is not valid UTF-8", path), nil)
	}
	return model.NewContractSource(string(data), model.ProvenanceLocalFile, nil), nil
}

func (f *Fetcher) fetchRaw(raw string) (model.ContractSource, error) {
	if raw == "" {
		return model.ContractSource{}, model.NewError(model.KindSourceUnavailable, "empty source body", nil)
	}
	if !utf8.ValidString(raw) {
		return model.ContractSource{}, model.NewError(model.KindSourceNotUTF8, "raw source is not valid UTF-8", nil)
	}
	return model.NewContractSource(raw, model.ProvenanceLocalFile, nil), nil
}

func (f *Fetcher) fetchByAddress(ctx context.Context, address string) (model.ContractSource, error) {
	if f.Explorer != nil {
		var resp explorerSourceResponse
		var found bool
		err := retry.Do(ctx, f.Policy, func(attempt int) error {
			var rerr error
			resp, found, rerr = f.Explorer.GetVerifiedSource(ctx, address)
			return classifyNetworkErr(rerr)
		})
		if err != nil {
			return model.ContractSource{}, model.NewError(model.KindSourceUnavailable, "explorer lookup failed", err)
		}
		if found {
			return model.NewContractSource(resp.SourceCode, model.ProvenanceExplorerVerified, &model.SourceMetadata{
				CompilerVersion: resp.CompilerVersion,
				ContractName:    resp.ContractName,
				Address:         address,
			}), nil
		}
	}

	if f.Sourcify != nil {
		var resp explorerSourceResponse
		var found bool
		err := retry.Do(ctx, f.Policy, func(attempt int) error {
			var rerr error
			resp, found, rerr = f.Sourcify.GetVerifiedSource(ctx, address)
			return classifyNetworkErr(rerr)
		})
		if err != nil {
			return model.ContractSource{}, model.NewError(model.KindSourceUnavailable, "sourcify lookup failed", err)
		}
		if found {
			return model.NewContractSource(resp.SourceCode, model.ProvenanceSourcifyVerified, &model.SourceMetadata{
				CompilerVersion: resp.CompilerVersion,
				ContractName:    resp.ContractName,
				Address:         address,
			}), nil
		}
	}

	if f.Explorer != nil {
		bytecode, found, err := f.Explorer.GetDeployedBytecode(ctx, address)
		if err != nil {
			return model.ContractSource{}, model.NewError(model.KindSourceUnavailable, "bytecode lookup failed", err)
		}
		if found {
			return model.NewContractSource(bytecode, model.ProvenanceBytecodeDecompiled, &model.SourceMetadata{
				Address: address,
			}), nil
		}
	}

	return model.ContractSource{}, model.NewError(model.KindSourceUnavailable,
		fmt.Sprintf("no source or bytecode found for %s", address), nil)
}

// classifyNetworkErr returns err unchanged, so every error is retried.
// GetVerifiedSource already folds 404 into found=false with err=nil, so the
// errors reaching here are transport errors and non-404 HTTP error statuses.
func classifyNetworkErr(err error) error {
	return err
}

// HTTPClientWithTimeout is a convenience constructor for an HTTP client with
// a bounded per-request timeout, suitable for explorer/sourcify clients. The
// CLI wiring does not call it; it passes a nil client (http.DefaultClient).
func HTTPClientWithTimeout(d time.Duration) *http.Client {
	return &http.Client{Timeout: d}
}
