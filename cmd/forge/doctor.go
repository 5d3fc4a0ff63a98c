package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe for the deployer toolchain and a reachable RPC endpoint",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := config.Doctor(cmd.Context(), cfg)
	out := cmd.OutOrStdout()
	if report != nil {
		fmt.Fprintf(out, "toolchain found: %v", report.ToolchainFound)
		if report.ToolchainFound {
			fmt.Fprintf(out, " (%s)", report.ToolchainPath)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "rpc reachable: %v", report.RPCReachable)
		if report.RPCReachable {
			fmt.Fprintf(out, " (chain id %d)", report.ChainID)
		}
		fmt.Fprintln(out)
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
	}
	return err
}
