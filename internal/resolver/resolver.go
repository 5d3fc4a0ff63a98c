// Package resolver produces a correctly typed, correctly ordered constructor
// argument list for a compiled contract, or fails before the deployer is
// ever invoked (spec.md §4.4). It replaces "silent success with wrong args"
// with a hard failure on any ABI/source/user-input disagreement.
package resolver

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Param is one constructor parameter as independently recovered from the
// ABI.
type Param struct {
	Name string
	Type abi.Type
}

// constructorSigRE extracts a `constructor(...)` parameter list from
// Solidity source text, tolerating visibility/modifier keywords between the
// closing paren and the body.
var constructorSigRE = regexp.MustCompile(`constructor\s*\(([^)]*)\)`)

// Resolve runs the full algorithm of spec.md §4.4 steps 1-6. deployerAddr is
// substituted for any well-known owner/admin parameter that auto-defaults
// (step 5).
func Resolve(contractABI abi.ABI, source string, userArgs model.ConstructorArgs, deployerAddr common.Address) ([]interface{}, string, error) {
	abiParams := paramsFromABI(contractABI)

	sourceParams, sourceFound := paramsFromSource(source)
	if sourceFound && !arityAndTypeMatch(abiParams, sourceParams) {
		return nil, "", model.NewError(model.KindConstructorMismatch,
			fmt.Sprintf("ABI signature %s disagrees with source signature %s",
				signatureString(abiParams), sourceSignatureString(sourceParams)), nil)
	}

	values, err := resolveValues(abiParams, userArgs, deployerAddr)
	if err != nil {
		return nil, "", err
	}

	return values, signatureString(abiParams), nil
}

func paramsFromABI(contractABI abi.ABI) []Param {
	out := make([]Param, 0, len(contractABI.Constructor.Inputs))
	for _, in := range contractABI.Constructor.Inputs {
		out = append(out, Param{Name: in.Name, Type: in.Type})
	}
	return out
}

// sourceParam is a (name, declared type text) pair recovered by regex from
// the constructor signature in source, used only for the cross-check —
// never for actual value coercion (the ABI is authoritative for that).
type sourceParam struct {
	Name string
	Type string
}

func paramsFromSource(source string) ([]sourceParam, bool) {
	m := constructorSigRE.FindStringSubmatch(source)
	if m == nil {
		return nil, false
	}
	raw := strings.TrimSpace(m[1])
	if raw == "" {
		return []sourceParam{}, true
	}

	parts := splitTopLevelCommas(raw)
	out := make([]sourceParam, 0, len(parts))
	for _, p := range parts {
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) == 0 {
			continue
		}
		typ := fields[0]
		name := ""
		if len(fields) > 1 {
			name = fields[len(fields)-1]
		}
		out = append(out, sourceParam{Name: name, Type: typ})
	}
	return out, true
}

// splitTopLevelCommas splits a parameter list on commas that are not nested
// inside parentheses (tuple/array types).
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func arityAndTypeMatch(abiParams []Param, sourceParams []sourceParam) bool {
	if len(abiParams) != len(sourceParams) {
		return false
	}
	for i, p := range abiParams {
		if !typeTextMatches(p.Type.String(), sourceParams[i].Type) {
			return false
		}
	}
	return true
}

// typeTextMatches compares an ABI-canonical type string to the source's
// declared type token, tolerant of the "memory"/"calldata" suffixes and
// common aliases (uint == uint256, int == int256).
func typeTextMatches(abiType, sourceType string) bool {
	norm := func(t string) string {
		t = strings.TrimSuffix(t, " memory")
		t = strings.TrimSuffix(t, " calldata")
		if t == "uint" {
			t = "uint256"
		}
		if t == "int" {
			t = "int256"
		}
		return t
	}
	return norm(abiType) == norm(sourceType)
}

func signatureString(params []Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Type.String()
	}
	return "constructor(" + strings.Join(parts, ",") + ")"
}

func sourceSignatureString(params []sourceParam) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Type
	}
	return "constructor(" + strings.Join(parts, ",") + ")"
}

// resolveValues implements spec.md §4.4 steps 3-5: positional/named
// coercion, or well-known auto-defaults when no user arguments are given.
func resolveValues(params []Param, userArgs model.ConstructorArgs, deployerAddr common.Address) ([]interface{}, error) {
	switch {
	case len(userArgs.Positional) > 0:
		return resolvePositional(params, userArgs.Positional)
	case len(userArgs.Named) > 0:
		return resolveNamed(params, userArgs.Named)
	default:
		return resolveDefaults(params, deployerAddr)
	}
}

func resolvePositional(params []Param, values []string) ([]interface{}, error) {
	if len(values) != len(params) {
		return nil, model.NewError(model.KindArgumentTypeError,
			fmt.Sprintf("expected %d constructor arguments, got %d", len(params), len(values)), nil)
	}
	out := make([]interface{}, len(params))
	for i, p := range params {
		v, err := coerce(p, values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func resolveNamed(params []Param, named map[string]string) ([]interface{}, error) {
	out := make([]interface{}, len(params))
	for i, p := range params {
		raw, ok := named[p.Name]
		if !ok {
			return nil, model.NewError(model.KindArgumentsRequired,
				fmt.Sprintf("missing named constructor argument %q", p.Name), nil)
		}
		v, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// wellKnownOwnerNames are constructor parameter names that auto-default to
// the deployer's own address (spec.md §4.4 step 5).
var wellKnownOwnerNames = map[string]struct{}{
	"owner": {}, "initialOwner": {}, "admin": {},
}

func resolveDefaults(params []Param, deployerAddr common.Address) ([]interface{}, error) {
	if len(params) == 0 {
		return []interface{}{}, nil
	}
	out := make([]interface{}, len(params))
	for i, p := range params {
		switch {
		case p.Type.T == abi.AddressTy:
			if _, ok := wellKnownOwnerNames[p.Name]; ok {
				out[i] = deployerAddr
				continue
			}
			return nil, model.NewError(model.KindArgumentsRequired,
				fmt.Sprintf("constructor argument %q has no default and none was supplied", p.Name), nil)
		case isNumericType(p.Type):
			out[i] = big.NewInt(0)
		case p.Type.T == abi.StringTy:
			out[i] = ""
		case p.Type.T == abi.BoolTy:
			out[i] = false
		default:
			return nil, model.NewError(model.KindArgumentsRequired,
				fmt.Sprintf("constructor argument %q (%s) has no well-known default", p.Name, p.Type.String()), nil)
		}
	}
	return out, nil
}

func isNumericType(t abi.Type) bool {
	return t.T == abi.UintTy || t.T == abi.IntTy
}

// coerce converts a single user-supplied textual value to the ABI type,
// per spec.md §4.4 step 3.
func coerce(p Param, raw string) (interface{}, error) {
	switch p.Type.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, model.NewError(model.KindArgumentTypeError,
				fmt.Sprintf("argument %q: %q is not a valid 20-byte address", p.Name, raw), nil)
		}
		return common.HexToAddress(raw), nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok {
			return nil, model.NewError(model.KindArgumentTypeError,
				fmt.Sprintf("argument %q: %q is not a valid integer", p.Name, raw), nil)
		}
		if !fitsWidth(n, p.Type) {
			return nil, model.NewError(model.KindArgumentTypeError,
				fmt.Sprintf("argument %q: %s does not fit in %s", p.Name, n.String(), p.Type.String()), nil)
		}
		return n, nil
	case abi.BoolTy:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, model.NewError(model.KindArgumentTypeError,
				fmt.Sprintf("argument %q: %q is not a valid bool", p.Name, raw), nil)
		}
		return b, nil
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy, abi.FixedBytesTy:
		return []byte(raw), nil
	default:
		return nil, model.NewError(model.KindArgumentTypeError,
			fmt.Sprintf("argument %q: unsupported constructor type %s", p.Name, p.Type.String()), nil)
	}
}

func fitsWidth(n *big.Int, t abi.Type) bool {
	bits := t.Size
	if bits == 0 {
		bits = 256
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return false
		}
		max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		return n.Cmp(max) < 0
	}
	half := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	min := new(big.Int).Neg(half)
	max := new(big.Int).Sub(half, big.NewInt(1))
	return n.Cmp(min) >= 0 && n.Cmp(max) <= 0
}
