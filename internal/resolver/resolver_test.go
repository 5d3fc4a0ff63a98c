package resolver

import (
	"strings"
	"testing"

	goabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-agent/contractforge/internal/model"
)

const tokenABI = `[{
  "type": "constructor",
  "inputs": [
    {"name": "owner", "type": "address"},
    {"name": "supply", "type": "uint256"}
  ]
}]`

const tokenSource = `pragma solidity ^0.8.20;
contract Token {
    constructor(address owner, uint256 supply) {
    }
}`

func mustParseABI(t *testing.T, raw string) goabi.ABI {
	t.Helper()
	a, err := goabi.JSON(strings.NewReader(raw))
	require.NoError(t, err)
	return a
}

// P3: round-trip against accounts/abi — positional args coerce correctly.
func TestResolve_PositionalArgs(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	values, sig, err := Resolve(a, tokenSource, model.ConstructorArgs{
		Positional: []string{"0x0000000000000000000000000000000000000001", "1000"},
	}, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "constructor(address,uint256)", sig)
	require.Len(t, values, 2)
	assert.Equal(t, common.HexToAddress("0x1"), values[0])
}

func TestResolve_NamedArgsReordered(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	values, _, err := Resolve(a, tokenSource, model.ConstructorArgs{
		Named: map[string]string{
			"supply": "500",
			"owner":  "0x0000000000000000000000000000000000000002",
		},
	}, common.Address{})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, common.HexToAddress("0x2"), values[0])
}

func TestResolve_MissingNamedArgFails(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	_, _, err := Resolve(a, tokenSource, model.ConstructorArgs{
		Named: map[string]string{"owner": "0x0000000000000000000000000000000000000002"},
	}, common.Address{})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindArgumentsRequired, perr.Kind)
}

func TestResolve_AutoDefaultsOwnerAndZero(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	deployer := common.HexToAddress("0x00000000000000000000000000000000000099")
	values, _, err := Resolve(a, tokenSource, model.ConstructorArgs{}, deployer)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, deployer, values[0])
}

func TestResolve_ArityMismatchIsConstructorMismatch(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	badSource := `constructor(address owner) {}`
	_, _, err := Resolve(a, badSource, model.ConstructorArgs{
		Positional: []string{"0x0000000000000000000000000000000000000001", "1000"},
	}, common.Address{})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindConstructorMismatch, perr.Kind)
}

func TestResolve_InvalidAddressIsArgumentTypeError(t *testing.T) {
	a := mustParseABI(t, tokenABI)
	_, _, err := Resolve(a, tokenSource, model.ConstructorArgs{
		Positional: []string{"not-an-address", "1000"},
	}, common.Address{})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindArgumentTypeError, perr.Kind)
}

func TestResolve_NoArgsNoDefaultsFails(t *testing.T) {
	abiJSON := `[{"type":"constructor","inputs":[{"name":"data","type":"bytes32"}]}]`
	a := mustParseABI(t, abiJSON)
	_, _, err := Resolve(a, `constructor(bytes32 data) {}`, model.ConstructorArgs{}, common.Address{})
	require.Error(t, err)

	var perr *model.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.KindArgumentsRequired, perr.Kind)
}
