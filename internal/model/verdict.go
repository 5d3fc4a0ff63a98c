package model

// AuditVerdict is the fused, deduplicated, severity-adjusted outcome of the
// audit stage (spec.md §3, §4.3). Immutable once produced.
type AuditVerdict struct {
	Findings           []Finding `json:"findings"`
	OverallSeverity    Severity  `json:"overallSeverity"`
	Score              int       `json:"score"`
	AggregateConfidence float64  `json:"aggregateConfidence"`
	ReviewRequired     bool      `json:"reviewRequired"`
}

// UnknownVerdict is the verdict returned when zero runners produced output
// (spec.md §4.3 "Failure modes").
func UnknownVerdict(sourceConfidence float64) AuditVerdict {
	return AuditVerdict{
		Findings:            []Finding{},
		OverallSeverity:     SeverityInfo,
		Score:               50,
		AggregateConfidence: sourceConfidence * 0.5,
		ReviewRequired:      false,
	}
}
