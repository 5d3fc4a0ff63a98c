// Package consensus fuses the per-runner Findings produced by the audit
// fan-out (internal/audit.RunAll) into a single AuditVerdict, implementing
// the seven-step algorithm of spec.md §4.3. The engine is pure and
// deterministic: same inputs, same verdict, every time.
package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hyperion-agent/contractforge/internal/model"
)

const locationTolerance = 2

// cluster is a group of Findings merged by the deduplication step.
type cluster struct {
	kind       model.VulnKind
	severity   model.Severity
	confidence model.DetectorConfidence
	location   *model.Location
	evidence   string
	detectors  map[string]struct{}
	// anyHighConfidenceMember records whether at least one contributing
	// detector individually reported Confidence == High, the fixed meaning
	// of "high-confidence detector" for the consensus filter.
	anyHighConfidenceMember bool
}

// Fuse runs the full consensus algorithm over raw findings collected from
// activeRunners distinct runners, against the source they were collected
// from.
func Fuse(raw []model.Finding, src model.ContractSource, activeRunners int) model.AuditVerdict {
	normalized := normalize(raw)
	clusters := deduplicate(normalized)
	kept := filterConsensus(clusters)

	lowTrust := src.LowTrust()
	if lowTrust {
		for i := range kept {
			kept[i].severity = kept[i].severity.Degrade()
		}
	}

	findings := toFindings(kept)
	overall := overallSeverity(kept)
	score := aggregateScore(kept)
	confidence := aggregateConfidence(kept, src.Confidence, activeRunners)

	if len(raw) == 0 {
		return model.UnknownVerdict(src.Confidence)
	}

	return model.AuditVerdict{
		Findings:            findings,
		OverallSeverity:     overall,
		Score:               score,
		AggregateConfidence: confidence,
		ReviewRequired:      overall >= model.SeverityHigh,
	}
}

// normalize drops findings whose kind does not map onto the closed
// enumeration (spec.md §4.3 step 1).
func normalize(raw []model.Finding) []model.Finding {
	out := make([]model.Finding, 0, len(raw))
	for _, f := range raw {
		if _, ok := model.NormalizeVulnKind(string(f.Kind)); ok {
			out = append(out, f)
		}
	}
	return out
}

// deduplicate merges findings that share kind and either a nearby location
// or identical evidence text, keeping the highest severity and the highest
// confidence seen among the members and the set of agreeing detectors (spec.md §4.3 step
// 2). The canonical location is taken from the earliest-alphabetical
// detector among the merged members (tie-breaking rule).
func deduplicate(findings []model.Finding) []*cluster {
	var clusters []*cluster

	for _, f := range findings {
		hash := evidenceHash(f.Evidence)
		var match *cluster
		for _, c := range clusters {
			if c.kind != f.Kind {
				continue
			}
			sameLocation := f.Location != nil && c.location != nil && withinLines(*c.location, *f.Location, locationTolerance)
			sameEvidence := hash != "" && hash == c.evidence
			if sameLocation || sameEvidence {
				match = c
				break
			}
		}

		if match == nil {
			match = &cluster{
				kind:      f.Kind,
				severity:  f.Severity,
				location:  f.Location,
				detectors: map[string]struct{}{},
			}
			clusters = append(clusters, match)
		}

		locationWins := canonicalLocationWins(match, f)
		match.detectors[f.Detector] = struct{}{}
		if f.Confidence == model.ConfidenceHigh {
			match.anyHighConfidenceMember = true
		}
		if f.Confidence > match.confidence {
			match.confidence = f.Confidence
		}
		if f.Severity > match.severity {
			match.severity = f.Severity
		}
		if hash != "" && match.evidence == "" {
			match.evidence = hash
		}
		if locationWins {
			match.location = f.Location
		}
	}

	return clusters
}

// canonicalLocationWins reports whether f's detector is earlier
// alphabetically than every detector already recorded on c, meaning f's
// location should become canonical.
func canonicalLocationWins(c *cluster, f model.Finding) bool {
	if f.Location == nil {
		return false
	}
	if c.location == nil {
		return true
	}
	for existing := range c.detectors {
		if f.Detector >= existing {
			return false
		}
	}
	return true
}

// filterConsensus keeps a cluster iff at least two distinct detectors
// agreed, or a single high-confidence detector reported severity >= High
// (spec.md §4.3 step 3).
func filterConsensus(clusters []*cluster) []*cluster {
	var kept []*cluster
	for _, c := range clusters {
		if len(c.detectors) >= 2 {
			kept = append(kept, c)
			continue
		}
		if c.severity >= model.SeverityHigh && c.anyHighConfidenceMember {
			kept = append(kept, c)
		}
	}
	return kept
}

// aggregateScore implements spec.md §4.3 step 5.
func aggregateScore(kept []*cluster) int {
	score := 100.0
	for _, c := range kept {
		score -= severityBase(c.severity) * c.confidence.Weight()
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

func severityBase(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return 40
	case model.SeverityHigh:
		return 25
	case model.SeverityMedium:
		return 10
	case model.SeverityLow:
		return 3
	default:
		return 0
	}
}

// aggregateConfidence implements spec.md §4.3 step 6. With fewer than two
// active runners or no kept findings there is no possible disagreement to
// measure, so meanAgreement is taken as 1.0.
func aggregateConfidence(kept []*cluster, provenanceConfidence float64, activeRunners int) float64 {
	meanAgreement := 1.0
	if len(kept) > 0 && activeRunners > 1 {
		total := 0
		for _, c := range kept {
			total += len(c.detectors)
		}
		avgAgreeing := float64(total) / float64(len(kept))
		meanAgreement = 0.5 + 0.5*(avgAgreeing-1)/float64(activeRunners-1)
		if meanAgreement < 0.5 {
			meanAgreement = 0.5
		}
		if meanAgreement > 1.0 {
			meanAgreement = 1.0
		}
	}
	if provenanceConfidence < meanAgreement {
		return provenanceConfidence
	}
	return meanAgreement
}

func overallSeverity(kept []*cluster) model.Severity {
	max := model.SeverityInfo
	for _, c := range kept {
		if c.severity > max {
			max = c.severity
		}
	}
	return max
}

func toFindings(kept []*cluster) []model.Finding {
	out := make([]model.Finding, 0, len(kept))
	for _, c := range kept {
		detectors := make([]string, 0, len(c.detectors))
		for d := range c.detectors {
			detectors = append(detectors, d)
		}
		sort.Strings(detectors)
		out = append(out, model.Finding{
			Kind:       c.kind,
			Severity:   c.severity,
			Confidence: c.confidence,
			Location:   c.location,
			Detector:   detectors[0],
			Detectors:  detectors,
		})
	}
	return out
}

// withinLines reports whether a and b are in the same file and within
// tolerance source lines of each other (spec.md §4.3 step 2(a)).
func withinLines(a, b model.Location, tolerance int) bool {
	if a.File != b.File {
		return false
	}
	d := a.Line - b.Line
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// evidenceHash returns a stable hash of evidence text, or "" for empty
// evidence (which never matches for dedup purposes).
func evidenceHash(evidence string) string {
	trimmed := strings.TrimSpace(evidence)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}
