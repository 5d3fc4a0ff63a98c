// Package model defines the data types shared across the contract-delivery
// pipeline: source provenance, audit findings and verdicts, deployment
// records, and workflow state.
package model

import "time"

// Provenance identifies the origin of a ContractSource and determines its
// initial trust level.
type Provenance string

const (
	ProvenanceLocalFile           Provenance = "local_file"
	ProvenanceExplorerVerified    Provenance = "explorer_verified"
	ProvenanceSourcifyVerified    Provenance = "sourcify_verified"
	ProvenanceBytecodeDecompiled  Provenance = "bytecode_decompiled"
	ProvenanceLLMGenerated        Provenance = "llm_generated"
)

// BaseConfidence returns the default confidence score for a provenance, as
// fixed by spec.md §3.
func (p Provenance) BaseConfidence() float64 {
	switch p {
	case ProvenanceLocalFile:
		return 1.0
	case ProvenanceExplorerVerified:
		return 0.95
	case ProvenanceSourcifyVerified:
		return 0.90
	case ProvenanceLLMGenerated:
		return 0.85
	case ProvenanceBytecodeDecompiled:
		return 0.30
	default:
		return 0.0
	}
}

// SourceMetadata carries optional facts about a ContractSource recovered
// during fetch (e.g. from explorer verification data).
type SourceMetadata struct {
	CompilerVersion string `json:"compilerVersion,omitempty"`
	ContractName    string `json:"contractName,omitempty"`
	Address         string `json:"address,omitempty"`
}

// ContractSource is a unit of Solidity source with provenance and trust.
// Immutable once constructed.
type ContractSource struct {
	Body       string          `json:"body"`
	Provenance Provenance      `json:"provenance"`
	Confidence float64         `json:"confidence"`
	Metadata   *SourceMetadata `json:"metadata,omitempty"`
	FetchedAt  time.Time       `json:"fetchedAt"`
}

// NewContractSource builds a ContractSource with the default confidence for
// its provenance, unless overridden by meta.
func NewContractSource(body string, provenance Provenance, meta *SourceMetadata) ContractSource {
	return ContractSource{
		Body:       body,
		Provenance: provenance,
		Confidence: provenance.BaseConfidence(),
		Metadata:   meta,
		FetchedAt:  time.Now().UTC(),
	}
}

// LowTrust reports whether the source's confidence is below the 0.5
// threshold used for provenance-based severity degradation (spec.md §4.3
// step 4).
func (c ContractSource) LowTrust() bool {
	return c.Confidence < 0.5
}
