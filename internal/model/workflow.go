package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID is a sortable identifier for a workflow run, used as the artifact
// directory name and the run-history primary key.
type RunID string

// NewRunID mints a new run identifier from the given entropy source and
// timestamp (callers pass time.Now() — kept as a parameter so tests can be
// deterministic).
func NewRunID(t time.Time, entropy ulid.MonotonicReader) RunID {
	return RunID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Stage is a workflow state-machine marker (spec.md §4.9).
type Stage string

const (
	StageInit        Stage = "Init"
	StageGenerating  Stage = "Generating"
	StageAuditing    Stage = "Auditing"
	StagePolicyGate  Stage = "PolicyGate"
	StageResolving   Stage = "Resolving"
	StageDeploying   Stage = "Deploying"
	StageVerifying   Stage = "Verifying"
	StageTesting     Stage = "Testing"
	StageDone        Stage = "Done"
	StageFailed      Stage = "Failed"
)

// stageOrder fixes the total order of §4.9 for P1 (stage monotonicity).
var stageOrder = map[Stage]int{
	StageInit: 0, StageGenerating: 1, StageAuditing: 2, StagePolicyGate: 3,
	StageResolving: 4, StageDeploying: 5, StageVerifying: 6, StageTesting: 7,
	StageDone: 8,
}

// Before reports whether s strictly precedes o in the total stage order.
// Failed is not part of the linear order: it is reachable from any stage.
func (s Stage) Before(o Stage) bool {
	si, sok := stageOrder[s]
	oi, ook := stageOrder[o]
	return sok && ook && si < oi
}

// Terminal reports whether a stage is one of the two terminal states.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// ErrorRecord is a machine-readable unit appended to WorkflowState.errors.
type ErrorRecord struct {
	Kind        ErrorKind `json:"kind"`
	Stage       Stage     `json:"stage"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
	At          time.Time `json:"at"`
}

// Bypasses records which optional stages were explicitly skipped via CLI
// flags (spec.md §4.9: "never silently skips a stage").
type Bypasses struct {
	NoAudit       bool `json:"noAudit,omitempty"`
	NoVerify      bool `json:"noVerify,omitempty"`
	TestOnly      bool `json:"testOnly,omitempty"`
	AllowInsecure bool `json:"allowInsecure,omitempty"`
}

// WorkflowState is the full, append-only record of one workflow run.
type WorkflowState struct {
	RunID     RunID                  `json:"runId"`
	Stage     Stage                  `json:"stage"`
	Prompt    string                 `json:"prompt,omitempty"`
	Network   NetworkConfig          `json:"network"`
	Bypasses  Bypasses               `json:"bypasses"`
	Artifacts map[Stage]string       `json:"artifacts"`
	Errors    []ErrorRecord          `json:"errors"`
	StartedAt time.Time              `json:"startedAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// NewWorkflowState initializes a run in the Init stage.
func NewWorkflowState(id RunID, prompt string, network NetworkConfig, bypasses Bypasses) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		RunID:     id,
		Stage:     StageInit,
		Prompt:    prompt,
		Network:   network,
		Bypasses:  bypasses,
		Artifacts: make(map[Stage]string),
		Errors:    []ErrorRecord{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the state machine forward. It refuses to move backward or to
// revisit a non-terminal stage already passed, enforcing P1.
func (w *WorkflowState) Advance(to Stage) {
	if !w.Stage.Before(to) {
		return
	}
	w.Stage = to
	w.UpdatedAt = time.Now().UTC()
}

// RecordArtifact tags the artifact reference produced by a stage.
func (w *WorkflowState) RecordArtifact(stage Stage, ref string) {
	w.Artifacts[stage] = ref
	w.UpdatedAt = time.Now().UTC()
}

// Fail transitions the workflow to Failed and appends the error record. Any
// stage may transition to Failed (spec.md §4.9 invariant).
func (w *WorkflowState) Fail(rec ErrorRecord) {
	w.Errors = append(w.Errors, rec)
	w.Stage = StageFailed
	w.UpdatedAt = time.Now().UTC()
}

// ReadyForDone reports whether every prior stage produced a success artifact,
// the precondition for moving to Done (spec.md §3 WorkflowState invariant).
func (w *WorkflowState) ReadyForDone(required []Stage) bool {
	for _, s := range required {
		if _, ok := w.Artifacts[s]; !ok {
			return false
		}
	}
	return true
}
