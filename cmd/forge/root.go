package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Generate, audit, deploy, and verify smart contracts end to end",
	Long: `forge drives the contract-delivery pipeline: an LLM-generated (or
locally supplied) Solidity source passes through static-analysis consensus,
a policy gate, constructor-argument resolution, subprocess deployment, and
block-explorer verification.

Examples:
  forge workflow run "an ERC20 with a pausable transfer" --network hyperion
  forge generate contract --type erc20 --name MyToken --use-rag
  forge audit contract --contract ./MyToken.sol --format markdown
  forge deploy contract --contract ./MyToken.sol --args '["MyToken","MTK"]'
  forge verify contract --address 0xabc... --source ./MyToken.sol
  forge context --workflow-id 01J...`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(limitationsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}
