package pattern

import (
	"context"
	"strings"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Runner implements audit.Runner by scanning ContractSource.Body against a
// fixed set of compiled regex rules: builtin rules plus whatever a
// supplementary YAML rule file contributes (spec.md §4.2 "Pattern runner").
type Runner struct {
	rules []compiledRule
}

// NewRunner compiles the builtin rule set plus any rules from rulesFilePath.
// rulesFilePath may be empty, in which case only builtins apply.
func NewRunner(rulesFilePath string) (*Runner, error) {
	rules := builtinRules()

	extra, err := LoadRulesFile(rulesFilePath)
	if err != nil {
		return nil, err
	}
	rules = append(rules, extra...)

	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	return &Runner{rules: compiled}, nil
}

// Name identifies this runner as the pattern detector.
func (r *Runner) Name() string { return "pattern" }

// Run scans src line by line against every rule, skipping a rule for a given
// match when any of its safe-patterns also appear in the body (a cheap
// proxy for "the developer already guarded this call site").
func (r *Runner) Run(ctx context.Context, src model.ContractSource) ([]model.Finding, error) {
	lines := strings.Split(src.Body, "\n")
	var findings []model.Finding

	file := ""
	if src.Metadata != nil {
		file = src.Metadata.ContractName
	}

	for _, rule := range r.rules {
		if ruleIsSuppressed(rule, src.Body) {
			continue
		}
		for lineNo, line := range lines {
			for _, re := range rule.sourceRegexps {
				if !re.MatchString(line) {
					continue
				}
				findings = append(findings, model.Finding{
					Kind:       rule.Kind,
					Severity:   rule.Severity,
					Confidence: rule.Confidence,
					Location: &model.Location{
						File: file,
						Line: lineNo + 1,
					},
					Detector: "pattern",
					Evidence: strings.TrimSpace(line),
				})
				break
			}
		}
	}
	return findings, nil
}

// ruleIsSuppressed reports whether any of rule's safe-patterns match
// anywhere in body, in which case the rule's source-pattern hits for this
// source are treated as guarded and dropped.
func ruleIsSuppressed(rule compiledRule, body string) bool {
	for _, re := range rule.safeRegexps {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}
