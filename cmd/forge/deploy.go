package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/deploy"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/resolver"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Resolve and deploy contract source without running the full workflow",
}

type deployContractArgs struct {
	Contract string `validate:"required"`
}

var deployContractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Resolve constructor arguments and deploy a local source file",
	RunE:  runDeployContract,
}

func init() {
	deployContractCmd.Flags().String("contract", "", "path to a local .sol source file")
	deployContractCmd.Flags().String("args", "", "constructor arguments as a JSON array or object")
	deployContractCmd.Flags().String("file", "", "path to a JSON file carrying the same constructor arguments")
	deployCmd.AddCommand(deployContractCmd)
}

func runDeployContract(cmd *cobra.Command, _ []string) error {
	contractPath, _ := cmd.Flags().GetString("contract")
	argsJSON, _ := cmd.Flags().GetString("args")
	argsFile, _ := cmd.Flags().GetString("file")

	dargs := deployContractArgs{Contract: contractPath}
	if err := validate.Struct(dargs); err != nil {
		return model.NewError(model.KindConfigInvalid, "invalid deploy contract arguments", err)
	}

	userArgs, err := loadConstructorArgs(argsJSON, argsFile)
	if err != nil {
		return model.NewError(model.KindArgumentTypeError, "failed to parse constructor arguments", err)
	}

	body, err := os.ReadFile(contractPath)
	if err != nil {
		return model.NewError(model.KindSourceUnavailable, fmt.Sprintf("failed to read %s", contractPath), err)
	}

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	deployerKey := os.Getenv(cfg.Deployer.PrivateKeyEnv)
	if deployerKey == "" {
		return model.NewError(model.KindConfigMissing, fmt.Sprintf("ConfigMissing:%s", cfg.Deployer.PrivateKeyEnv), nil)
	}
	deployerAddr, err := deployerAddressFromKey(deployerKey)
	if err != nil {
		return model.NewError(model.KindConfigInvalid, "ConfigInvalid:deployer_private_key", err)
	}

	deployer := buildDeployer(cfg, logger)
	contractABI, err := deployer.ExtractABI(ctx, string(body))
	if err != nil {
		return err
	}

	values, signature, err := resolver.Resolve(contractABI, string(body), userArgs, deployerAddr)
	if err != nil {
		return err
	}
	logger.Info("resolved constructor arguments", "signature", signature)

	record, err := deployer.Deploy(ctx, deploy.Request{
		Source:          string(body),
		ConstructorArgs: stringifyConstructorValues(values),
		Network:         cfg.Network,
		DeployerKey:     deployerKey,
	})
	if err != nil {
		return err
	}
	record.ConstructorArgs = zipConstructorArgs(contractABI, values)

	store := buildArtifactStore(cfg)
	runID := newRunID()
	if _, err := store.WriteDeployment(runID, *record); err != nil {
		logger.Error("failed to persist deployment artifact", "error", err.Error())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func deployerAddressFromKey(hexKey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// stringifyConstructorValues mirrors the orchestrator's arg-rendering rule
// (spec.md §4.5 step 2: "constructor args (shell-escaped)").
func stringifyConstructorValues(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case common.Address:
			out = append(out, t.Hex())
		case *big.Int:
			out = append(out, t.String())
		case bool:
			out = append(out, strconv.FormatBool(t))
		case string:
			out = append(out, t)
		case []byte:
			out = append(out, fmt.Sprintf("0x%x", t))
		default:
			out = append(out, fmt.Sprintf("%v", t))
		}
	}
	return out
}

func zipConstructorArgs(contractABI abi.ABI, values []interface{}) []model.ConstructorArg {
	inputs := contractABI.Constructor.Inputs
	out := make([]model.ConstructorArg, 0, len(inputs))
	for i, in := range inputs {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		out = append(out, model.ConstructorArg{Name: in.Name, Type: in.Type.String(), Value: v})
	}
	return out
}
