// Package workflow implements the orchestrator: the state machine of
// spec.md §4.9 that drives a single run through Generating, Auditing,
// PolicyGate, Resolving, Deploying, Verifying, and Testing to a terminal
// Done or Failed. It owns no business logic of its own beyond sequencing —
// every stage's real work lives in the adapter package it calls.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperion-agent/contractforge/internal/artifactstore"
	"github.com/hyperion-agent/contractforge/internal/audit"
	"github.com/hyperion-agent/contractforge/internal/audit/consensus"
	"github.com/hyperion-agent/contractforge/internal/config"
	"github.com/hyperion-agent/contractforge/internal/deploy"
	"github.com/hyperion-agent/contractforge/internal/history"
	"github.com/hyperion-agent/contractforge/internal/llm"
	"github.com/hyperion-agent/contractforge/internal/metrics"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/resolver"
	"github.com/hyperion-agent/contractforge/internal/verify"
)

// recordHistory persists the current state snapshot to the optional
// history store. A nil o.History makes this a no-op.
func (o *Orchestrator) recordHistory(ctx context.Context, state *model.WorkflowState) {
	if o.History == nil {
		return
	}
	if err := o.History.Record(ctx, state); err != nil {
		o.Logger.Error("failed to persist run history", slog.String("error", err.Error()))
	}
}

// timeStage observes how long a stage took against metrics.StageDuration.
func timeStage(stage model.Stage) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

// Orchestrator wires the per-stage adapters into the §4.9 state machine.
type Orchestrator struct {
	Generator *llm.Generator
	Runners   []audit.Runner
	Deployer  *deploy.Deployer
	Verifier  *verify.Verifier
	Store     *artifactstore.Store
	// History is an optional durable run-history sink. A nil History is
	// a no-op: every Store method tolerates a nil receiver.
	History *history.Store
	Ceiling time.Duration
	Logger  *slog.Logger
	// DoctorFunc is the optional startup probe (spec.md §9, "External-tool
	// availability -> probe-on-startup"). A nil DoctorFunc skips the probe,
	// which is the case in orchestrator tests that construct fakes in place
	// of a real compiler/RPC endpoint.
	DoctorFunc func(ctx context.Context) (*config.DoctorReport, error)
}

// New builds an Orchestrator. A zero ceiling defaults to the 30-minute
// per-workflow budget of spec.md §5.
func New(generator *llm.Generator, runners []audit.Runner, deployer *deploy.Deployer, verifier *verify.Verifier, store *artifactstore.Store, ceiling time.Duration, logger *slog.Logger) *Orchestrator {
	if ceiling <= 0 {
		ceiling = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Generator: generator, Runners: runners, Deployer: deployer, Verifier: verifier, Store: store, Ceiling: ceiling, Logger: logger}
}

// Request bundles every input a `workflow run` invocation needs.
type Request struct {
	RunID          model.RunID
	Prompt         string
	SystemTemplate string
	RAGSnippets    []string
	Network        model.NetworkConfig
	UserArgs       model.ConstructorArgs
	DeployerKey    string
	Bypasses       model.Bypasses
}

// Run drives req through the full state machine, returning the final
// WorkflowState always, and a non-nil error exactly when the run ended in
// Failed (spec.md §4.9: "no partial-success masquerade").
func (o *Orchestrator) Run(ctx context.Context, req Request) (*model.WorkflowState, error) {
	ctx, cancel := context.WithTimeout(ctx, o.Ceiling)
	defer cancel()

	state := model.NewWorkflowState(req.RunID, req.Prompt, req.Network, req.Bypasses)

	if req.Bypasses.NoAudit {
		o.Logger.Warn("audit stage bypassed", slog.String("runId", string(req.RunID)), slog.String("flag", "--no-audit"))
	}
	if req.Bypasses.NoVerify {
		o.Logger.Warn("verification stage bypassed", slog.String("runId", string(req.RunID)), slog.String("flag", "--no-verify"))
	}
	if req.Bypasses.TestOnly {
		o.Logger.Warn("workflow running in test-only mode", slog.String("runId", string(req.RunID)), slog.String("flag", "--test-only"))
	}

	if o.DoctorFunc != nil {
		report, err := o.DoctorFunc(ctx)
		if err != nil {
			return o.fail(ctx, state, model.StageInit, err)
		}
		for _, w := range report.Warnings {
			o.Logger.Warn("doctor probe warning", slog.String("runId", string(req.RunID)), slog.String("warning", w))
		}
	}

	// Generating
	state.Advance(model.StageGenerating)
	stopGenerating := timeStage(model.StageGenerating)
	body, err := o.Generator.Generate(ctx, llm.Request{
		SystemTemplate: req.SystemTemplate,
		UserRequest:    req.Prompt,
		RAGSnippets:    req.RAGSnippets,
	})
	stopGenerating()
	if err != nil {
		return o.fail(ctx, state, model.StageGenerating, err)
	}
	contractSource := model.NewContractSource(body, model.ProvenanceLLMGenerated, nil)
	if _, err := o.Store.WriteSource(req.RunID, contractSource.Body); err != nil {
		o.Logger.Error("failed to persist source artifact", slog.String("error", err.Error()))
	}
	state.RecordArtifact(model.StageGenerating, "source.sol")
	o.recordHistory(ctx, state)

	// Auditing
	state.Advance(model.StageAuditing)
	stopAuditing := timeStage(model.StageAuditing)
	var verdict model.AuditVerdict
	if req.Bypasses.NoAudit {
		verdict = model.UnknownVerdict(contractSource.Confidence)
	} else {
		findings := audit.RunAll(ctx, o.Logger, contractSource, o.Runners)
		verdict = consensus.Fuse(findings, contractSource, len(o.Runners))
	}
	stopAuditing()
	metrics.AuditScore.WithLabelValues(string(req.RunID)).Set(float64(verdict.Score))
	if _, err := o.Store.WriteAudit(req.RunID, verdict); err != nil {
		o.Logger.Error("failed to persist audit artifact", slog.String("error", err.Error()))
	}
	state.RecordArtifact(model.StageAuditing, "audit.json")
	o.recordHistory(ctx, state)

	// PolicyGate
	state.Advance(model.StagePolicyGate)
	if verdict.ReviewRequired && !req.Bypasses.AllowInsecure {
		metrics.AuditGateTrips.Inc()
		return o.fail(ctx, state, model.StagePolicyGate, model.NewErrorWithRemediation(
			model.KindAuditGate,
			fmt.Sprintf("audit requires review: overallSeverity=%s score=%d", verdict.OverallSeverity, verdict.Score),
			"re-run with --allow-insecure to proceed despite the flagged findings, or remediate the source",
			nil,
		))
	}

	// Resolving
	state.Advance(model.StageResolving)
	stopResolving := timeStage(model.StageResolving)
	contractABI, err := o.Deployer.ExtractABI(ctx, contractSource.Body)
	if err != nil {
		return o.fail(ctx, state, model.StageResolving, err)
	}
	deployerAddr, err := deployerAddress(req.DeployerKey)
	if err != nil {
		return o.fail(ctx, state, model.StageResolving, model.NewError(model.KindConfigInvalid, "ConfigInvalid:deployer_private_key", err))
	}
	values, signature, err := resolver.Resolve(contractABI, contractSource.Body, req.UserArgs, deployerAddr)
	if err != nil {
		return o.fail(ctx, state, model.StageResolving, err)
	}
	o.Logger.Info("resolved constructor arguments", slog.String("signature", signature))

	argStrings := stringifyArgs(values)
	packedArgs, err := contractABI.Constructor.Inputs.Pack(values...)
	if err != nil {
		return o.fail(ctx, state, model.StageResolving, model.NewError(model.KindArgumentTypeError, "resolved arguments do not ABI-encode against the constructor", err))
	}
	constructorArgRecords := toConstructorArgRecords(contractABI, values)
	stopResolving()

	// Deploying
	state.Advance(model.StageDeploying)
	stopDeploying := timeStage(model.StageDeploying)
	record, err := o.Deployer.Deploy(ctx, deploy.Request{
		Source:          contractSource.Body,
		ConstructorArgs: argStrings,
		Network:         req.Network,
		DeployerKey:     req.DeployerKey,
	})
	stopDeploying()
	if err != nil {
		var perr *model.PipelineError
		if errors.As(err, &perr) {
			if _, werr := o.Store.WriteDeploymentFailure(req.RunID, model.ErrorRecord{
				Kind: perr.Kind, Stage: model.StageDeploying, Message: perr.Message, Remediation: perr.Remediation, At: time.Now().UTC(),
			}); werr != nil {
				o.Logger.Error("failed to persist deployment failure artifact", slog.String("error", werr.Error()))
			}
		}
		metrics.DeploymentsTotal.WithLabelValues(req.Network.Name, "failed").Inc()
		return o.fail(ctx, state, model.StageDeploying, err)
	}
	metrics.DeploymentsTotal.WithLabelValues(req.Network.Name, "succeeded").Inc()
	record.ConstructorArgs = constructorArgRecords
	if _, err := o.Store.WriteDeployment(req.RunID, *record); err != nil {
		o.Logger.Error("failed to persist deployment artifact", slog.String("error", err.Error()))
	}
	state.RecordArtifact(model.StageDeploying, "deployment.json")
	o.recordHistory(ctx, state)

	// Verifying — non-fatal: deployment already succeeded (spec.md §7).
	state.Advance(model.StageVerifying)
	stopVerifying := timeStage(model.StageVerifying)
	var (
		vOutcome string
		vGUID    string
		vDetail  string
	)
	if req.Bypasses.NoVerify {
		vOutcome = string(verify.OutcomeSkipped)
	} else {
		result, err := o.Verifier.Verify(ctx, verify.Request{
			Address:             record.ContractAddress,
			Source:              contractSource.Body,
			CompilerVersion:     "",
			ConstructorArgsABI:  fmt.Sprintf("%x", packedArgs),
			OptimizationEnabled: false,
		})
		if err != nil {
			o.Logger.Warn("verification adapter failed, recorded as non-fatal", slog.String("error", err.Error()))
			vOutcome = string(verify.OutcomeTimeout)
			vDetail = err.Error()
		} else {
			vOutcome = string(result.Outcome)
			vGUID = result.GUID
			vDetail = result.Detail
		}
	}
	stopVerifying()
	metrics.VerificationsTotal.WithLabelValues(vOutcome).Inc()
	if _, err := o.Store.WriteVerification(req.RunID, vOutcome, vGUID, vDetail, time.Now().UTC().Format(time.RFC3339)); err != nil {
		o.Logger.Error("failed to persist verification artifact", slog.String("error", err.Error()))
	}
	state.RecordArtifact(model.StageVerifying, "verification.json")
	o.recordHistory(ctx, state)

	// Testing — any terminal outcome of the prior stages advances to Done;
	// --test-only is recorded above as an explicit bypass of nothing further
	// downstream (Testing is the last stage before Done), so its effect here
	// is purely evidentiary.
	state.Advance(model.StageTesting)
	state.RecordArtifact(model.StageTesting, "ok")
	o.recordHistory(ctx, state)

	state.Advance(model.StageDone)
	metrics.WorkflowRunsTotal.WithLabelValues(string(model.StageDone)).Inc()
	o.recordHistory(ctx, state)
	if _, err := o.Store.WriteContext(state); err != nil {
		o.Logger.Error("failed to persist workflow context", slog.String("error", err.Error()))
	}
	return state, nil
}

// fail records cause's underlying PipelineError into state (a cause that is
// not a PipelineError is recorded as Cancelled), writes the final
// context dump, and returns the error for exit-code mapping (spec.md §4.9:
// "writes a final workflow-context dump ... surfaces a non-zero exit code").
func (o *Orchestrator) fail(ctx context.Context, state *model.WorkflowState, stage model.Stage, cause error) (*model.WorkflowState, error) {
	var perr *model.PipelineError
	if !errors.As(cause, &perr) {
		perr = model.NewError(model.KindCancelled, cause.Error(), cause)
	}
	metrics.WorkflowRunsTotal.WithLabelValues(string(model.StageFailed)).Inc()
	state.Fail(model.ErrorRecord{
		Kind:        perr.Kind,
		Stage:       stage,
		Message:     perr.Message,
		Remediation: perr.Remediation,
		At:          time.Now().UTC(),
	})
	o.recordHistory(ctx, state)
	if _, err := o.Store.WriteContext(state); err != nil {
		o.Logger.Error("failed to persist workflow context after failure", slog.String("error", err.Error()))
	}
	return state, perr
}

// deployerAddress derives the deployer's address from its hex-encoded
// private key, for substitution into well-known owner/admin constructor
// parameters (spec.md §4.4 step 5).
func deployerAddress(hexKey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse deployer private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// stringifyArgs renders resolved constructor values as the textual arguments
// the deployer subprocess CLI expects. No escaping is applied: each value is
// passed to the subprocess as its own argv entry, without a shell.
func stringifyArgs(values []interface{}) []string {
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
			out = append(out, "0x"+fmt.Sprintf("%x", t))
		default:
			out = append(out, fmt.Sprintf("%v", t))
		}
	}
	return out
}

// toConstructorArgRecords zips resolved values with their ABI names/types
// into the DeploymentRecord.ConstructorArgs shape (spec.md §3).
func toConstructorArgRecords(contractABI abi.ABI, values []interface{}) []model.ConstructorArg {
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
