package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/artifactstore"
	"github.com/hyperion-agent/contractforge/internal/audit"
	"github.com/hyperion-agent/contractforge/internal/audit/pattern"
	"github.com/hyperion-agent/contractforge/internal/deploy"
	"github.com/hyperion-agent/contractforge/internal/llm"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/retry"
	"github.com/hyperion-agent/contractforge/internal/verify"
)

// fakeCompleter returns a fixed response regardless of the prompt, standing
// in for the LLM provider collaborator.
type fakeCompleter struct{ response string }

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.response, nil
}

const cleanContractSource = `pragma solidity ^0.8.20;
contract Token {
    constructor(address owner) {}
}`

const selfdestructContractSource = `pragma solidity ^0.8.20;
contract Bomb {
    constructor(address owner) {}
    function kill() public {
        selfdestruct(msg.sender);
    }
}`

const mismatchedConstructorSource = `pragma solidity ^0.8.20;
contract Token {
    constructor(address owner, uint256 supply) {}
}`

// writeFakeDeployer writes a shell script standing in for the compiler/
// deployer subprocess: given "--emit-abi" it prints a one-address-parameter
// constructor ABI; otherwise it prints a successful deployment result
// (spec.md §4.5, §6 "Deployer subprocess contract").
func writeFakeDeployer(t *testing.T, abiJSON string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-deployer.sh")
	script := "#!/bin/sh\n" +
		"for arg in \"$@\"; do\n" +
		"  if [ \"$arg\" = \"--emit-abi\" ]; then\n" +
		"    echo '" + abiJSON + "'\n" +
		"    exit 0\n" +
		"  fi\n" +
		"done\n" +
		"echo '{\"tx\":\"0x1111111111111111111111111111111111111111111111111111111111111111\",\"address\":\"0x000000000000000000000000000000000000dEaD\",\"gasUsed\":21000,\"block\":1}'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// singleAddressParamABI is a one-parameter constructor ABI. Paired against
// a two-parameter source constructor (mismatchedConstructorSource) it is
// also what drives the S3 arity-mismatch scenario below.
const singleAddressParamABI = `{"abi": [{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address","internalType":"address"}]}]}`

// jsonRPCStub serves just enough of the JSON-RPC surface (eth_getCode) for
// ethclient.DialContext-based post-deploy verification to succeed.
func jsonRPCStub(t *testing.T, code string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_getCode":
			resp["result"] = code
		case "eth_chainId":
			resp["result"] = "0x7a69"
		default:
			resp["result"] = "0x0"
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func fastVerifyPolicy() time.Duration { return 5 * time.Second }

func newTestOrchestrator(t *testing.T, deployerBinary string, explorer *httptest.Server, completer llm.Completer, runners []audit.Runner) *Orchestrator {
	t.Helper()
	store := artifactstore.NewStore(t.TempDir())
	generator := &llm.Generator{Completer: completer, Policy: retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}}
	deployer := deploy.NewDeployer(deployerBinary, 10*time.Second, 1*time.Second, nil)
	var verifier *verify.Verifier
	if explorer != nil {
		verifier = verify.NewVerifier(explorer.URL, "", nil, fastVerifyPolicy())
	}
	return New(generator, runners, deployer, verifier, store, time.Minute, nil)
}

func baseRequest(network model.NetworkConfig) Request {
	return Request{
		RunID:          model.RunID("test-run"),
		Prompt:         "create a token",
		SystemTemplate: "you write Solidity",
		Network:        network,
		DeployerKey:    "0000000000000000000000000000000000000000000000000000000000000001",
	}
}

// TestWorkflow_S2_FatalAuditGate exercises S2: a Critical, unguarded
// selfdestruct finding must fail the workflow at PolicyGate with AuditGate,
// before any deployer subprocess runs.
func TestWorkflow_S2_FatalAuditGate(t *testing.T) {
	binary := writeFakeDeployer(t, singleAddressParamABI)
	runner, err := pattern.NewRunner("")
	require.NoError(t, err)

	o := newTestOrchestrator(t, binary, nil, &fakeCompleter{response: selfdestructContractSource}, []audit.Runner{runner})

	state, err := o.Run(context.Background(), baseRequest(model.NetworkConfig{Name: "hyperion", ChainID: 31337, RPCURL: "http://127.0.0.1:0"}))
	require.Error(t, err)
	assert.Equal(t, model.StageFailed, state.Stage)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, model.KindAuditGate, state.Errors[0].Kind)
	assert.Equal(t, model.StagePolicyGate, state.Errors[0].Stage)
	_, deployed := state.Artifacts[model.StageDeploying]
	assert.False(t, deployed)
}

// TestWorkflow_S3_ConstructorMismatch exercises S3: the ABI extracted from
// the toolchain disagrees in arity with the source's constructor signature.
func TestWorkflow_S3_ConstructorMismatch(t *testing.T) {
	binary := writeFakeDeployer(t, singleAddressParamABI)
	runner, err := pattern.NewRunner("")
	require.NoError(t, err)

	o := newTestOrchestrator(t, binary, nil, &fakeCompleter{response: mismatchedConstructorSource}, []audit.Runner{runner})

	state, err := o.Run(context.Background(), baseRequest(model.NetworkConfig{Name: "hyperion", ChainID: 31337, RPCURL: "http://127.0.0.1:0"}))
	require.Error(t, err)
	assert.Equal(t, model.StageFailed, state.Stage)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, model.KindConstructorMismatch, state.Errors[0].Kind)
	assert.Equal(t, model.StageResolving, state.Errors[0].Stage)
}

// TestWorkflow_S6_VerifierTimeoutIsNonFatal exercises S6: a successful
// deployment whose explorer verification never leaves "pending" still
// reaches Done, recording a Timeout verification outcome.
func TestWorkflow_S6_VerifierTimeoutIsNonFatal(t *testing.T) {
	binary := writeFakeDeployer(t, singleAddressParamABI)
	rpc := jsonRPCStub(t, "0x600160010160005260206000f3")
	defer rpc.Close()

	explorer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/verify/submit":
			_, _ = w.Write([]byte(`{"guid":"g1"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		}
	}))
	defer explorer.Close()

	runner, err := pattern.NewRunner("")
	require.NoError(t, err)

	o := newTestOrchestrator(t, binary, explorer, &fakeCompleter{response: cleanContractSource}, []audit.Runner{runner})
	o.Verifier = verify.NewVerifier(explorer.URL, "", nil, 1500*time.Millisecond)

	state, err := o.Run(context.Background(), baseRequest(model.NetworkConfig{Name: "hyperion", ChainID: 31337, RPCURL: rpc.URL}))
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, state.Stage)
	assert.Empty(t, state.Errors)
	_, verified := state.Artifacts[model.StageVerifying]
	assert.True(t, verified)
}

// TestWorkflow_CancellationReachesFailed is a liveness check in the spirit
// of P8: cancelling the context before the run starts must still produce a
// Failed terminal state rather than hang.
func TestWorkflow_CancellationReachesFailed(t *testing.T) {
	binary := writeFakeDeployer(t, singleAddressParamABI)
	runner, err := pattern.NewRunner("")
	require.NoError(t, err)

	o := newTestOrchestrator(t, binary, nil, &fakeCompleter{response: cleanContractSource}, []audit.Runner{runner})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	state, err := o.Run(ctx, baseRequest(model.NetworkConfig{Name: "hyperion", ChainID: 31337, RPCURL: "http://127.0.0.1:0"}))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, model.StageFailed, state.Stage)
	assert.Less(t, elapsed, 5*time.Second)
}

