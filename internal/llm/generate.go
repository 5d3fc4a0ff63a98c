// Package llm composes prompts from a system template, the user's request,
// and retrieved RAG snippets, and post-processes the generated contract
// source before it re-enters the pipeline (spec.md §4.8). This runner
// belongs to the Generating stage, distinct from internal/audit/llmrunner's
// audit-time completion call, though both speak the same completion
// protocol.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/retry"
)

// Completer is the minimal contract a completion backend must satisfy;
// internal/audit/llmrunner's HTTP client implements an equivalent shape and
// could be reused here, but is kept separate to not couple audit-time and
// generation-time retry/backoff policies.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request bundles the inputs to prompt composition.
type Request struct {
	SystemTemplate string
	UserRequest    string
	RAGSnippets    []string
}

// Generator drives contract generation against a Completer, retrying on a
// malformed response under its own Policy. Every attempt sends the same
// prompt; the temperature is not changed between attempts (HTTPCompleter
// always sends 0.2).
type Generator struct {
	Completer Completer
	Policy    retry.Policy
}

// NewGenerator builds a Generator with the default retry policy.
func NewGenerator(completer Completer) *Generator {
	return &Generator{Completer: completer, Policy: retry.DefaultPolicy()}
}

// Generate composes the prompt, calls the completer, and validates the
// response (spec.md §4.8: strip code fences, reject empty, Solidity sanity
// check). A response failing the sanity check is retried up to the policy's
// attempt budget before failing with LLMMalformed.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	prompt := composePrompt(req)

	var result string
	err := retry.Do(ctx, g.Policy, func(attempt int) error {
		raw, err := g.Completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		cleaned := stripCodeFences(raw)
		if cleaned == "" {
			return fmt.Errorf("llm returned an empty response")
		}
		if !looksLikeSolidity(cleaned) {
			return fmt.Errorf("llm response failed the solidity sanity check")
		}
		result = cleaned
		return nil
	})
	if err != nil {
		return "", model.NewError(model.KindLLMMalformed, "contract generation did not produce valid Solidity", err)
	}
	return result, nil
}

func composePrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.SystemTemplate)
	b.WriteString("\n\n")
	if len(req.RAGSnippets) > 0 {
		b.WriteString("Reference snippets:\n")
		for _, s := range req.RAGSnippets {
			b.WriteString("---\n")
			b.WriteString(s)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Request:\n")
	b.WriteString(req.UserRequest)
	return b.String()
}

func stripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```solidity")
	t = strings.TrimPrefix(t, "```sol")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// looksLikeSolidity applies the fixed sanity check of SPEC_FULL.md §4.8:
// case-insensitive "pragma solidity" followed later by the keyword
// "contract".
func looksLikeSolidity(text string) bool {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "pragma solidity")
	if idx < 0 {
		return false
	}
	return strings.Contains(lower[idx:], "contract")
}
