package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/config"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/template"
	"github.com/hyperion-agent/contractforge/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Drive a full generate-audit-deploy-verify run",
}

type workflowRunArgs struct {
	Prompt        string `validate:"required"`
	Network       string `validate:"required"`
	NoAudit       bool
	NoVerify      bool
	TestOnly      bool
	AllowInsecure bool
}

var workflowRunCmd = &cobra.Command{
	Use:   "run \"<prompt>\"",
	Short: "Run the full workflow state machine end to end",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRun,
}

func init() {
	workflowRunCmd.Flags().Bool("no-audit", false, "skip the Auditing stage (recorded as an explicit bypass)")
	workflowRunCmd.Flags().Bool("no-verify", false, "skip the Verifying stage (recorded as an explicit bypass)")
	workflowRunCmd.Flags().Bool("test-only", false, "record the run as evidentiary test-only; does not change stage execution")
	workflowRunCmd.Flags().Bool("allow-insecure", false, "proceed past PolicyGate despite review-required audit findings")
	workflowRunCmd.Flags().String("network", "hyperion", "target network name, as configured")
	workflowCmd.AddCommand(workflowRunCmd)
}

func runWorkflowRun(cmd *cobra.Command, cliArgs []string) error {
	noAudit, _ := cmd.Flags().GetBool("no-audit")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	testOnly, _ := cmd.Flags().GetBool("test-only")
	allowInsecure, _ := cmd.Flags().GetBool("allow-insecure")
	network, _ := cmd.Flags().GetString("network")

	rargs := workflowRunArgs{
		Prompt:        cliArgs[0],
		Network:       network,
		NoAudit:       noAudit,
		NoVerify:      noVerify,
		TestOnly:      testOnly,
		AllowInsecure: allowInsecure,
	}
	if err := validate.Struct(rargs); err != nil {
		return model.NewError(model.KindConfigInvalid, "invalid workflow run arguments", err)
	}

	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	runners, err := buildRunners(cfg, logger)
	if err != nil {
		return err
	}
	hist, err := buildHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer hist.Close()

	o := workflow.New(
		buildGenerator(cfg),
		runners,
		buildDeployer(cfg, logger),
		buildVerifier(cfg),
		buildArtifactStore(cfg),
		cfg.Workflow.Ceiling,
		logger,
	)
	o.History = hist
	o.DoctorFunc = func(ctx context.Context) (*config.DoctorReport, error) { return config.Doctor(ctx, cfg) }

	fetcher := buildTemplateFetcher(cfg)
	systemTemplate, err := fetcher.Get(ctx, template.DefaultSystemTemplateName)
	if err != nil {
		return err
	}

	deployerKey := os.Getenv(cfg.Deployer.PrivateKeyEnv)
	if deployerKey == "" {
		return model.NewError(model.KindConfigMissing, fmt.Sprintf("ConfigMissing:%s", cfg.Deployer.PrivateKeyEnv), nil)
	}

	runID := newRunID()
	state, runErr := o.Run(ctx, workflow.Request{
		RunID:          runID,
		Prompt:         rargs.Prompt,
		SystemTemplate: systemTemplate,
		Network:        model.NetworkConfig{Name: network, ChainID: cfg.Network.ChainID, RPCURL: cfg.Network.RPCURL},
		DeployerKey:    deployerKey,
		Bypasses: model.Bypasses{
			NoAudit:       noAudit,
			NoVerify:      noVerify,
			TestOnly:      testOnly,
			AllowInsecure: allowInsecure,
		},
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(state)

	return runErr
}
