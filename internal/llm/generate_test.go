package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/retry"
)

type fakeCompleter struct {
	responses []string
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: 1, MaxBackoff: 1, Jitter: false}
}

func TestGenerate_StripsCodeFenceAndValidates(t *testing.T) {
	c := &fakeCompleter{responses: []string{"```solidity\npragma solidity ^0.8.20;\ncontract C {}\n```"}}
	g := &Generator{Completer: c, Policy: fastPolicy()}

	out, err := g.Generate(context.Background(), Request{SystemTemplate: "sys", UserRequest: "an ERC20"})
	require.NoError(t, err)
	assert.Equal(t, "pragma solidity ^0.8.20;\ncontract C {}", out)
}

func TestGenerate_RetriesOnMalformedThenSucceeds(t *testing.T) {
	c := &fakeCompleter{responses: []string{
		"not solidity at all",
		"pragma solidity ^0.8.20;\ncontract Good {}",
	}}
	g := &Generator{Completer: c, Policy: fastPolicy()}

	out, err := g.Generate(context.Background(), Request{SystemTemplate: "sys", UserRequest: "an ERC20"})
	require.NoError(t, err)
	assert.Contains(t, out, "contract Good")
	assert.Equal(t, 2, c.calls)
}

func TestGenerate_EmptyResponseFailsAsLLMMalformed(t *testing.T) {
	c := &fakeCompleter{responses: []string{"", "", ""}}
	g := &Generator{Completer: c, Policy: fastPolicy()}

	_, err := g.Generate(context.Background(), Request{SystemTemplate: "sys", UserRequest: "an ERC20"})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindLLMMalformed, perr.Kind)
}

func TestLooksLikeSolidity(t *testing.T) {
	assert.True(t, looksLikeSolidity("PRAGMA SOLIDITY ^0.8.0; contract X {}"))
	assert.False(t, looksLikeSolidity("contract X {}"))
	assert.False(t, looksLikeSolidity("pragma solidity ^0.8.0; nothing else"))
}
