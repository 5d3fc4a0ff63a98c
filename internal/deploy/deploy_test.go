package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
)

func TestParseToolOutput_JSON(t *testing.T) {
	result, err := parseToolOutput(`some preamble {"tx":"0xabc","address":"0x0000000000000000000000000000000000000001","gasUsed":21000,"block":5}`)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", result.Tx)
	assert.Equal(t, uint64(21000), result.GasUsed)
}

func TestParseToolOutput_HumanReadableFallback(t *testing.T) {
	text := "Deploying...\n" +
		"Transaction: 0x" + repeat("a", 64) + "\n" +
		"Deployed to: 0x0000000000000000000000000000000000000002\n" +
		"Gas used: 54321\n" +
		"Block: 42\n"
	result, err := parseToolOutput(text)
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000002", result.Address)
	assert.Equal(t, uint64(54321), result.GasUsed)
	assert.Equal(t, uint64(42), result.Block)
}

func TestParseToolOutput_NeitherFormatFails(t *testing.T) {
	_, err := parseToolOutput("totally unstructured garbage")
	require.Error(t, err)
}

func TestClassifyToolError_InsufficientFunds(t *testing.T) {
	err := classifyToolError("Error: insufficient funds for gas * price + value")
	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindInsufficientFunds, perr.Kind)
}

func TestClassifyToolError_Network(t *testing.T) {
	err := classifyToolError("dial tcp: connection unreachable")
	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindNetworkUnreachable, perr.Kind)
}

// P7: non-UTF8 subprocess output must not crash the decoder.
func TestDecodeLenient_HandlesInvalidUTF8(t *testing.T) {
	invalid := []byte{'o', 'k', 0xff, 0xfe, 'd', 'o', 'n', 'e'}
	out := decodeLenient(invalid)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "done")
}

// P2: ToolchainMissing is raised, never a fabricated success, when the
// deployer binary is absent.
func TestDeploy_MissingBinaryIsToolchainMissing(t *testing.T) {
	d := NewDeployer("contractforge-definitely-not-a-real-binary", 2*time.Second, time.Second, nil)
	_, err := d.Deploy(context.Background(), Request{
		Source:  "contract C {}",
		Network: model.NetworkConfig{Name: "test", ChainID: 1, RPCURL: "http://localhost:8545"},
	})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindToolchainMissing, perr.Kind)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
