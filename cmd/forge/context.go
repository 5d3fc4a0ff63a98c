package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/model"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Dump a persisted workflow context record",
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().String("workflow-id", "", "run id to look up; omitted lists the most recent runs (history enabled) and is an error otherwise")
}

func runContext(cmd *cobra.Command, _ []string) error {
	workflowID, _ := cmd.Flags().GetString("workflow-id")

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		store := buildArtifactStore(cfg)
		if workflowID == "" {
			return model.NewError(model.KindConfigInvalid, "--workflow-id is required when history is disabled", nil)
		}
		data, err := store.ReadArtifact(model.RunID(workflowID), "context.json")
		if err != nil {
			return model.NewError(model.KindSourceUnavailable, fmt.Sprintf("no context recorded for run %s", workflowID), err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	hist, err := buildHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer hist.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if workflowID != "" {
		state, err := hist.Get(ctx, model.RunID(workflowID))
		if err != nil {
			return err
		}
		if state == nil {
			return model.NewError(model.KindSourceUnavailable, fmt.Sprintf("no run found with id %s", workflowID), nil)
		}
		return enc.Encode(state)
	}

	states, err := hist.List(ctx, 50)
	if err != nil {
		return err
	}
	return enc.Encode(states)
}
