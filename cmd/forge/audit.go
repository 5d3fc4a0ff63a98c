package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperion-agent/contractforge/internal/audit"
	"github.com/hyperion-agent/contractforge/internal/audit/consensus"
	"github.com/hyperion-agent/contractforge/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit contract source without running the full workflow",
}

var auditContractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Run the audit consensus engine against a local source file or a deployed address",
	RunE:  runAuditContract,
}

func init() {
	auditContractCmd.Flags().String("contract", "", "path to a local .sol source file")
	auditContractCmd.Flags().String("address", "", "deployed contract address to fetch source for (requires --network)")
	auditContractCmd.Flags().String("network", "", "network name --address was deployed to")
	auditContractCmd.Flags().String("format", "json", "output format: json, markdown, or html")
	auditContractCmd.Flags().String("severity", "Info", "minimum severity to include in the report")
	auditCmd.AddCommand(auditContractCmd)
}

func runAuditContract(cmd *cobra.Command, _ []string) error {
	contractPath, _ := cmd.Flags().GetString("contract")
	address, _ := cmd.Flags().GetString("address")
	network, _ := cmd.Flags().GetString("network")
	format, _ := cmd.Flags().GetString("format")
	severityFlag, _ := cmd.Flags().GetString("severity")

	if contractPath == "" && address == "" {
		return model.NewError(model.KindConfigInvalid, "one of --contract or --address is required", nil)
	}
	if address != "" && network == "" {
		return model.NewError(model.KindConfigInvalid, "--address requires --network", nil)
	}

	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	var src model.ContractSource
	switch {
	case contractPath != "":
		body, err := os.ReadFile(contractPath)
		if err != nil {
			return model.NewError(model.KindSourceUnavailable, fmt.Sprintf("failed to read %s", contractPath), err)
		}
		src = model.NewContractSource(string(body), model.ProvenanceLocalFile, nil)
	default:
		if network != cfg.Network.Name {
			logger.Warn("auditing address against a network other than the configured one",
				"requested", network, "configured", cfg.Network.Name)
		}
		src, err = buildSourceFetcher(cfg).Fetch(ctx, address)
		if err != nil {
			return err
		}
	}

	runners, err := buildRunners(cfg, logger)
	if err != nil {
		return err
	}

	findings := audit.RunAll(ctx, logger, src, runners)
	verdict := consensus.Fuse(findings, src, len(runners))

	minSeverity := model.ParseSeverity(severityFlag)
	verdict.Findings = filterBySeverity(verdict.Findings, minSeverity)

	return renderAuditReport(cmd.OutOrStdout(), verdict, format)
}

func filterBySeverity(findings []model.Finding, min model.Severity) []model.Finding {
	out := make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

func renderAuditReport(w io.Writer, verdict model.AuditVerdict, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	case "markdown":
		return renderAuditMarkdown(w, verdict)
	case "html":
		return renderAuditHTML(w, verdict)
	default:
		return model.NewError(model.KindConfigInvalid, fmt.Sprintf("unknown --format %q", format), nil)
	}
}

func renderAuditMarkdown(w io.Writer, verdict model.AuditVerdict) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Audit report\n\n")
	fmt.Fprintf(&b, "- Overall severity: **%s**\n", verdict.OverallSeverity)
	fmt.Fprintf(&b, "- Score: %d/100\n", verdict.Score)
	fmt.Fprintf(&b, "- Aggregate confidence: %.2f\n", verdict.AggregateConfidence)
	fmt.Fprintf(&b, "- Review required: %v\n\n", verdict.ReviewRequired)
	fmt.Fprintf(&b, "## Findings\n\n")
	for _, f := range verdict.Findings {
		fmt.Fprintf(&b, "- **%s** (%s, confidence %s) — %s\n", f.Kind, f.Severity, f.Confidence, f.Evidence)
	}
	_, err := w.Write([]byte(b.String()))
	return err
}

func renderAuditHTML(w io.Writer, verdict model.AuditVerdict) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Audit report</h1>\n<ul>\n")
	fmt.Fprintf(&b, "<li>Overall severity: %s</li>\n", verdict.OverallSeverity)
	fmt.Fprintf(&b, "<li>Score: %d/100</li>\n", verdict.Score)
	fmt.Fprintf(&b, "<li>Review required: %v</li>\n</ul>\n<ol>\n", verdict.ReviewRequired)
	for _, f := range verdict.Findings {
		fmt.Fprintf(&b, "<li>%s (%s): %s</li>\n", f.Kind, f.Severity, f.Evidence)
	}
	fmt.Fprintf(&b, "</ol>\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
