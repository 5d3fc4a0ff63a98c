package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// DoctorReport summarizes the result of a startup probe.
type DoctorReport struct {
	ToolchainFound bool
	ToolchainPath  string
	RPCReachable   bool
	ChainID        uint64
	Warnings       []string
}

// Doctor probes for the external deployer binary, the LLM provider key and
// deployer key environment variables, and a reachable RPC endpoint. It converts a deep-in-the-pipeline ToolchainMissing/
// NetworkUnreachable discovery into a precondition failure raised before
// Init -> Generating (spec.md §9).
func Doctor(ctx context.Context, cfg *Config) (*DoctorReport, error) {
	report := &DoctorReport{}

	path, err := exec.LookPath(cfg.Deployer.Binary)
	if err != nil {
		return report, model.NewErrorWithRemediation(
			model.KindToolchainMissing,
			fmt.Sprintf("deployer binary %q not found on PATH", cfg.Deployer.Binary),
			fmt.Sprintf("install the deployer toolchain, e.g.: curl -L https://foundry.paradigm.xyz | bash && foundryup (expected binary: %s)", cfg.Deployer.Binary),
			err,
		)
	}
	report.ToolchainFound = true
	report.ToolchainPath = path

	if err := MissingEnv(os.Getenv, []RequiredEnv{
		{Var: cfg.LLM.ProviderKeyEnv, Stage: model.StageGenerating},
		{Var: cfg.Deployer.PrivateKeyEnv, Stage: model.StageDeploying},
	}); err != nil {
		return report, err
	}

	if cfg.Network.RPCURL == "" {
		return report, model.NewError(model.KindConfigMissing, "ConfigMissing:network.rpc_url", nil)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.Network.RPCURL)
	if err != nil {
		return report, model.NewError(model.KindNetworkUnreachable,
			fmt.Sprintf("cannot reach RPC endpoint %s", cfg.Network.RPCURL), err)
	}
	defer client.Close()

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		return report, model.NewError(model.KindNetworkUnreachable, "failed to query chain ID", err)
	}
	report.RPCReachable = true
	report.ChainID = chainID.Uint64()

	if cfg.Network.ChainID != 0 && report.ChainID != cfg.Network.ChainID {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"configured chain id %d does not match RPC-reported chain id %d",
			cfg.Network.ChainID, report.ChainID))
	}

	return report, nil
}
