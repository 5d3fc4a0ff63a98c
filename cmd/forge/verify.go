package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Submit a deployed contract for block-explorer verification",
}

type verifyContractArgs struct {
	Address string `validate:"required"`
}

var verifyContractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Verify a deployed contract's source against the configured explorer",
	RunE:  runVerifyContract,
}

func init() {
	verifyContractCmd.Flags().String("address", "", "deployed contract address")
	verifyContractCmd.Flags().String("source", "", "path to the deployed source file")
	verifyCmd.AddCommand(verifyContractCmd)
}

func runVerifyContract(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")
	sourcePath, _ := cmd.Flags().GetString("source")

	vargs := verifyContractArgs{Address: address}
	if err := validate.Struct(vargs); err != nil {
		return model.NewError(model.KindConfigInvalid, "invalid verify contract arguments", err)
	}
	if sourcePath == "" {
		return model.NewError(model.KindConfigInvalid, "--source is required", nil)
	}

	body, err := os.ReadFile(sourcePath)
	if err != nil {
		return model.NewError(model.KindSourceUnavailable, fmt.Sprintf("failed to read %s", sourcePath), err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verifier := buildVerifier(cfg)
	result, err := verifier.Verify(cmd.Context(), verify.Request{
		Address: address,
		Source:  string(body),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
