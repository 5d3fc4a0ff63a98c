package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperion-agent/contractforge/internal/model"
)

func trustedSource() model.ContractSource {
	return model.NewContractSource("contract C {}", model.ProvenanceLocalFile, nil)
}

// P1: unknown-kind findings are dropped and never surface in a verdict.
func TestFuse_DropsUnknownKind(t *testing.T) {
	raw := []model.Finding{
		{Kind: "not_a_real_kind", Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh, Detector: "pattern"},
	}
	v := Fuse(raw, trustedSource(), 1)
	assert.Empty(t, v.Findings)
}

func TestFuse_SingleLowConfidenceFindingIsDropped(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnGasLimitLoop, Severity: model.SeverityMedium, Confidence: model.ConfidenceLow, Detector: "pattern"},
	}
	v := Fuse(raw, trustedSource(), 1)
	assert.Empty(t, v.Findings, "a single non-high-confidence detector must not pass the consensus filter")
}

func TestFuse_TwoDetectorsAgreeingAreKept(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceMedium,
			Location: &model.Location{File: "a.sol", Line: 10}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 11}, Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	if assert.Len(t, v.Findings, 1) {
		f := v.Findings[0]
		assert.Equal(t, model.SeverityCritical, f.Severity, "merged severity takes the max across members")
		assert.ElementsMatch(t, []string{"pattern", "symbolic"}, f.Detectors)
	}
}

func TestFuse_SingleHighConfidenceHighSeverityIsKept(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnSuicidal, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh, Detector: "pattern"},
	}
	v := Fuse(raw, trustedSource(), 1)
	assert.Len(t, v.Findings, 1)
}

// P4: provenance-based severity degradation only applies below the 0.5
// confidence threshold.
func TestFuse_DegradesSeverityForLowTrustSource(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
	}
	lowTrust := model.NewContractSource("bytecode-only", model.ProvenanceBytecodeDecompiled, nil)
	v := Fuse(raw, lowTrust, 2)
	if assert.Len(t, v.Findings, 1) {
		assert.Equal(t, model.SeverityHigh, v.Findings[0].Severity, "Critical should degrade to High under low trust")
	}
}

func TestFuse_NoDegradationForTrustedSource(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	assert.Equal(t, model.SeverityCritical, v.Findings[0].Severity)
}

// P5: aggregate score formula.
func TestFuse_ScoreFormula(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	// one kept Critical finding at High confidence weight: 100 - 40*1.5 = 40
	assert.Equal(t, 40, v.Score)
}

func TestFuse_ScoreClampsAtZero(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
		{Kind: model.VulnSuicidal, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 20}, Detector: "pattern"},
		{Kind: model.VulnSuicidal, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 21}, Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	assert.GreaterOrEqual(t, v.Score, 0)
}

// P6: aggregate confidence bounded by provenance confidence and agreement.
func TestFuse_AggregateConfidenceBoundedByProvenance(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
	}
	lowTrust := model.NewContractSource("bytecode-only", model.ProvenanceBytecodeDecompiled, nil)
	v := Fuse(raw, lowTrust, 2)
	assert.LessOrEqual(t, v.AggregateConfidence, lowTrust.Confidence)
}

func TestFuse_ReviewRequiredGate(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 1}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 2}, Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	assert.True(t, v.ReviewRequired)
}

func TestFuse_ZeroRunnerOutputYieldsUnknownVerdict(t *testing.T) {
	v := Fuse(nil, trustedSource(), 3)
	assert.Equal(t, model.SeverityInfo, v.OverallSeverity)
	assert.Equal(t, 50, v.Score)
	assert.False(t, v.ReviewRequired)
	assert.Empty(t, v.Findings)
}

func TestFuse_IsDeterministic(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceMedium,
			Location: &model.Location{File: "a.sol", Line: 10}, Detector: "pattern"},
		{Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			Location: &model.Location{File: "a.sol", Line: 11}, Detector: "symbolic"},
	}
	src := trustedSource()
	v1 := Fuse(raw, src, 2)
	v2 := Fuse(raw, src, 2)
	assert.Equal(t, v1, v2)
}

func TestFuse_DedupeByEvidenceHashAcrossDetectors(t *testing.T) {
	raw := []model.Finding{
		{Kind: model.VulnTxOrigin, Severity: model.SeverityHigh, Confidence: model.ConfidenceMedium,
			Evidence: "require(tx.origin == owner)", Detector: "pattern"},
		{Kind: model.VulnTxOrigin, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			Evidence: "require(tx.origin == owner)", Detector: "symbolic"},
	}
	v := Fuse(raw, trustedSource(), 2)
	assert.Len(t, v.Findings, 1, "identical evidence text should dedupe even without matching locations")
}
