package model

import "strings"

// VulnKind enumerates the vulnerability classes a Finding can carry. Findings
// whose kind does not normalize to one of these are dropped during consensus
// (spec.md §4.3 step 1).
type VulnKind string

const (
	VulnReentrancy           VulnKind = "reentrancy"
	VulnIntegerOverflow      VulnKind = "integerOverflow"
	VulnTxOrigin             VulnKind = "txOrigin"
	VulnTimestampDependence  VulnKind = "timestampDependence"
	VulnUncheckedCall        VulnKind = "uncheckedCall"
	VulnSuicidal             VulnKind = "suicidal"
	VulnUnsafeDelegatecall   VulnKind = "unsafeDelegatecall"
	VulnGasLimitLoop         VulnKind = "gasLimitLoop"
	VulnUnprotectedWithdrawal VulnKind = "unprotectedWithdrawal"
	VulnFrontRunning         VulnKind = "frontRunning"
	VulnOther                VulnKind = "other"
)

// knownVulnKinds backs NormalizeVulnKind.
var knownVulnKinds = map[VulnKind]struct{}{
	VulnReentrancy: {}, VulnIntegerOverflow: {}, VulnTxOrigin: {},
	VulnTimestampDependence: {}, VulnUncheckedCall: {}, VulnSuicidal: {},
	VulnUnsafeDelegatecall: {}, VulnGasLimitLoop: {}, VulnUnprotectedWithdrawal: {},
	VulnFrontRunning: {}, VulnOther: {},
}

// NormalizeVulnKind maps a raw, possibly-external string to the closed
// VulnKind enumeration. The second return value is false when the kind is
// unknown and the finding should be dropped.
func NormalizeVulnKind(raw string) (VulnKind, bool) {
	k := VulnKind(raw)
	_, ok := knownVulnKinds[k]
	return k, ok
}

// Severity is a total order over vulnerability severity: Info < Low < Medium
// < High < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// ParseSeverity parses a case-insensitive severity string, defaulting to
// SeverityInfo on unrecognized input.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Degrade steps a severity down by one, clamping at Info. Used for
// provenance-based severity adjustment (spec.md §4.3 step 4).
func (s Severity) Degrade() Severity {
	if s == SeverityInfo {
		return SeverityInfo
	}
	return s - 1
}

// DetectorConfidence is a runner's self-reported confidence in a Finding, a
// coarse three-level scale distinct from the real-valued ContractSource and
// AuditVerdict confidences.
type DetectorConfidence int

const (
	ConfidenceLow DetectorConfidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func ParseDetectorConfidence(s string) DetectorConfidence {
	switch s {
	case "High", "high":
		return ConfidenceHigh
	case "Medium", "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// weight used by the aggregate score formula (spec.md §4.3 step 5).
func (c DetectorConfidence) weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.5
	case ConfidenceMedium:
		return 1.0
	default:
		return 0.5
	}
}

// Weight exposes the score-formula multiplier for a detector confidence.
func (c DetectorConfidence) Weight() float64 { return c.weight() }

// Location is an optional source position attached to a Finding.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// withinLines reports whether two locations are in the same file and within
// +/-tolerance source lines of each other, the shape of the deduplication
// rule of spec.md §4.3 step 2(a).
func (l Location) withinLines(o Location, tolerance int) bool {
	if l.File != o.File {
		return false
	}
	d := l.Line - o.Line
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Finding is a single analyzer-reported potential vulnerability.
type Finding struct {
	Kind       VulnKind           `json:"kind"`
	Severity   Severity           `json:"severity"`
	Confidence DetectorConfidence `json:"confidence"`
	Location   *Location          `json:"location,omitempty"`
	Detector   string             `json:"detector"`
	Evidence   string             `json:"evidence,omitempty"`

	// Detectors lists every runner that agreed on this finding after
	// deduplication/merge. Populated only on merged findings returned by the
	// consensus engine.
	Detectors []string `json:"detectors,omitempty"`
}

func (f Finding) hasLocation() bool { return f.Location != nil }
