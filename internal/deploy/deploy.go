// Package deploy implements the deployment adapter: it invokes the
// configured compiler/deployer subprocess against an isolated build
// workspace, parses its result, and cross-checks the deployment against the
// chain before returning a DeploymentRecord (spec.md §4.5).
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// toolResult is the documented JSON shape the deployer subprocess emits on
// success (spec.md §4.5 step 3).
type toolResult struct {
	Tx      string `json:"tx"`
	Address string `json:"address"`
	GasUsed uint64 `json:"gasUsed"`
	Block   uint64 `json:"block"`
	Error   string `json:"error"`
}

// Deployer drives the external compiler/deployer binary.
type Deployer struct {
	Binary         string
	Timeout        time.Duration
	ShutdownGrace  time.Duration
	RPCClient      func(ctx context.Context, rpcURL string) (*ethclient.Client, error)
	Logger         *slog.Logger
}

// NewDeployer builds a Deployer with sane defaults for Timeout/ShutdownGrace
// when zero-valued.
func NewDeployer(binary string, timeout, shutdownGrace time.Duration, logger *slog.Logger) *Deployer {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if shutdownGrace <= 0 {
		shutdownGrace = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		Binary:        binary,
		Timeout:       timeout,
		ShutdownGrace: shutdownGrace,
		RPCClient:     ethclient.DialContext,
		Logger:        logger,
	}
}

// Request bundles everything the deployer subprocess needs.
type Request struct {
	Source          string
	ConstructorArgs []string // textual ABI arguments, already resolved; each is one argv entry, no shell is involved
	Network         model.NetworkConfig
	DeployerKey     string // hex-encoded private key, never logged
}

// Deploy prepares a build workspace, invokes the subprocess, and verifies
// the result against the chain (spec.md §4.5 steps 1-5).
func (d *Deployer) Deploy(ctx context.Context, req Request) (*model.DeploymentRecord, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return nil, model.NewErrorWithRemediation(model.KindToolchainMissing,
			fmt.Sprintf("deployer binary %q not found on PATH", d.Binary),
			"install the configured deployer toolchain and ensure it is on PATH", err)
	}

	workDir, cleanup, err := prepareWorkspace(req.Source)
	if err != nil {
		return nil, model.NewError(model.KindCompileError, "prepare build workspace", err)
	}
	defer cleanup()

	result, err := d.runSubprocess(ctx, workDir, req)
	if err != nil {
		return nil, err
	}

	if err := d.verifyOnChain(ctx, req.Network.RPCURL, result.Address); err != nil {
		return nil, err
	}

	return &model.DeploymentRecord{
		TransactionHash: result.Tx,
		ContractAddress: result.Address,
		Network:         req.Network,
		GasUsed:         result.GasUsed,
		BlockNumber:     result.Block,
	}, nil
}

// abiResult is the documented stdout shape of the deployer binary's
// ABI-extraction mode (spec.md §4.4 "Inputs: compiled ABI" implies a
// compile-for-ABI step distinct from the full deploy invocation; this
// reuses the same toolchain binary with an --emit-abi flag rather than
// introducing a second external tool).
type abiResult struct {
	ABI   json.RawMessage `json:"abi"`
	Error string          `json:"error"`
}

// ExtractABI compiles source and returns its constructor ABI without
// deploying anything, so the resolver (spec.md §4.4) has a compiled ABI to
// cross-check against the source before the deployer is ever invoked.
func (d *Deployer) ExtractABI(ctx context.Context, source string) (abi.ABI, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return abi.ABI{}, model.NewErrorWithRemediation(model.KindToolchainMissing,
			fmt.Sprintf("deployer binary %q not found on PATH", d.Binary),
			"install the configured deployer toolchain and ensure it is on PATH", err)
	}

	workDir, cleanup, err := prepareWorkspace(source)
	if err != nil {
		return abi.ABI{}, model.NewError(model.KindCompileError, "prepare build workspace", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary, filepath.Join(workDir, "Contract.sol"), "--emit-abi")
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "LC_ALL=C.UTF-8", "LANG=C.UTF-8")
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = d.ShutdownGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	stdoutText := decodeLenient(stdout.Bytes())
	stderrText := decodeLenient(stderr.Bytes())

	if ctx.Err() != nil {
		return abi.ABI{}, model.NewError(model.KindTimeout, "ABI extraction exceeded its wall-clock timeout", ctx.Err())
	}

	jsonStart := strings.IndexByte(stdoutText, '{')
	if jsonStart < 0 {
		return abi.ABI{}, classifyRunError(fmt.Errorf("no ABI output"), stderrText)
	}
	var result abiResult
	if err := json.Unmarshal([]byte(stdoutText[jsonStart:]), &result); err != nil {
		if runErr != nil {
			return abi.ABI{}, classifyRunError(runErr, stderrText)
		}
		return abi.ABI{}, model.NewError(model.KindCompileError, "could not parse ABI extraction output", err)
	}
	if result.Error != "" {
		return abi.ABI{}, classifyToolError(result.Error)
	}

	parsed, err := abi.JSON(bytes.NewReader(result.ABI))
	if err != nil {
		return abi.ABI{}, model.NewError(model.KindCompileError, "compiled ABI is not valid JSON ABI", err)
	}
	return parsed, nil
}

func prepareWorkspace(source string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "contractforge-build-*")
	if err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "Contract.sol")
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write contract source: %w", err)
	}
	return dir, cleanup, nil
}

func (d *Deployer) runSubprocess(ctx context.Context, workDir string, req Request) (*toolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	args := []string{
		filepath.Join(workDir, "Contract.sol"),
		"--rpc-url", req.Network.RPCURL,
		"--chain-id", strconv.FormatUint(req.Network.ChainID, 10),
		"--private-key", req.DeployerKey,
	}
	for _, a := range req.ConstructorArgs {
		args = append(args, "--constructor-arg", a)
	}

	cmd := exec.CommandContext(ctx, d.Binary, args...)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "LC_ALL=C.UTF-8", "LANG=C.UTF-8")
	// On ctx cancellation, send SIGTERM first and give the subprocess
	// ShutdownGrace to exit before the stdlib hard-kills it, following
	// cmd/pop-deployer's shutdownAnvilAndDumpState pattern.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = d.ShutdownGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	stdoutText := decodeLenient(stdout.Bytes())
	stderrText := decodeLenient(stderr.Bytes())
	if stderrText != "" {
		d.Logger.Debug("deployer stderr", slog.String("output", stderrText))
	}

	if ctx.Err() != nil {
		return nil, model.NewError(model.KindTimeout, "deployer subprocess exceeded its wall-clock timeout", ctx.Err())
	}

	result, parseErr := parseToolOutput(stdoutText)
	if parseErr != nil {
		if runErr != nil {
			return nil, classifyRunError(runErr, stderrText)
		}
		return nil, model.NewError(model.KindCompileError, "could not parse deployer output", parseErr)
	}
	if result.Error != "" {
		return nil, classifyToolError(result.Error)
	}
	return result, nil
}

// parseToolOutput extracts the JSON result object from stdout; falling back
// to a structured scan of human-readable output when no JSON is present
// (spec.md §4.5 step 3).
func parseToolOutput(stdout string) (*toolResult, error) {
	if jsonStart := strings.IndexByte(stdout, '{'); jsonStart >= 0 {
		var result toolResult
		if err := json.Unmarshal([]byte(stdout[jsonStart:]), &result); err == nil {
			return &result, nil
		}
	}
	if r, ok := scanHumanReadable(stdout); ok {
		return r, nil
	}
	return nil, fmt.Errorf("no structured result found in output: %q", stdout)
}

var (
	txHashRE  = regexp.MustCompile(`(?i)(?:tx(?:\s*hash)?|transaction)\s*[:=]\s*(0x[0-9a-fA-F]{64})`)
	addressRE = regexp.MustCompile(`(?i)(?:deployed to|contract address)\s*[:=]?\s*(0x[0-9a-fA-F]{40})`)
	gasUsedRE = regexp.MustCompile(`(?i)gas\s*used\s*[:=]\s*(\d+)`)
	blockRE   = regexp.MustCompile(`(?i)block(?:\s*number)?\s*[:=]\s*(\d+)`)
)

// scanHumanReadable is the structured post-processor for tools that print
// human-readable deployment summaries instead of JSON.
func scanHumanReadable(text string) (*toolResult, bool) {
	txMatch := txHashRE.FindStringSubmatch(text)
	addrMatch := addressRE.FindStringSubmatch(text)
	if txMatch == nil || addrMatch == nil {
		return nil, false
	}
	result := &toolResult{Tx: txMatch[1], Address: addrMatch[1]}
	if m := gasUsedRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			result.GasUsed = v
		}
	}
	if m := blockRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			result.Block = v
		}
	}
	return result, true
}

func classifyRunError(err error, stderrText string) error {
	lower := strings.ToLower(stderrText)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return model.NewError(model.KindInsufficientFunds, "deployer account has insufficient funds", err)
	case strings.Contains(lower, "compil"):
		return model.NewError(model.KindCompileError, stderrText, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return model.NewError(model.KindNetworkUnreachable, "RPC endpoint unreachable", err)
	default:
		return model.NewError(model.KindCompileError, "deployer subprocess failed", err)
	}
}

func classifyToolError(message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return model.NewError(model.KindInsufficientFunds, message, nil)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "unreachable"):
		return model.NewError(model.KindNetworkUnreachable, message, nil)
	default:
		return model.NewError(model.KindCompileError, message, nil)
	}
}

// verifyOnChain queries getCode on the reported address and fails with
// DeploymentUnverified if the chain disagrees with the tool (spec.md §4.5
// step 4).
func (d *Deployer) verifyOnChain(ctx context.Context, rpcURL, address string) error {
	client, err := d.RPCClient(ctx, rpcURL)
	if err != nil {
		return model.NewError(model.KindNetworkUnreachable, "dial RPC for post-deploy verification", err)
	}
	defer client.Close()

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return model.NewError(model.KindNetworkUnreachable, "getCode for post-deploy verification", err)
	}
	if len(code) == 0 {
		return model.NewError(model.KindDeploymentUnverified,
			fmt.Sprintf("deployer reported success but no code found at %s", address), nil)
	}
	return nil
}

func decodeLenient(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune('�')
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
