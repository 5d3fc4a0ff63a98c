// Package pattern implements the pattern-based static-analysis runner: it
// scans source for regex patterns associated with vulnerability classes
// (spec.md §4.2 "Pattern runner"). Grounded on the pattern/negation-pattern
// design of vulnerability scanners in the corpus.
package pattern

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// Rule defines one pattern-based vulnerability detector.
type Rule struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Kind        model.VulnKind     `yaml:"kind"`
	Severity    model.Severity     `yaml:"-"`
	SeverityStr string             `yaml:"severity"`
	Confidence  model.DetectorConfidence `yaml:"-"`
	ConfidenceStr string           `yaml:"confidence"`

	SourcePatterns []string `yaml:"sourcePatterns"`
	SafePatterns   []string `yaml:"safePatterns"`
}

// compiledRule is a Rule with its regexes pre-compiled once at load time.
type compiledRule struct {
	Rule
	sourceRegexps []*regexp.Regexp
	safeRegexps   []*regexp.Regexp
}

func compile(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.SeverityStr != "" {
			r.Severity = model.ParseSeverity(r.SeverityStr)
		}
		if r.ConfidenceStr != "" {
			r.Confidence = model.ParseDetectorConfidence(r.ConfidenceStr)
		}
		cr := compiledRule{Rule: r}
		for _, p := range r.SourcePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for rule %s: %w", p, r.ID, err)
			}
			cr.sourceRegexps = append(cr.sourceRegexps, re)
		}
		for _, p := range r.SafePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile safe-pattern %q for rule %s: %w", p, r.ID, err)
			}
			cr.safeRegexps = append(cr.safeRegexps, re)
		}
		out = append(out, cr)
	}
	return out, nil
}

// LoadRulesFile parses a YAML rule file supplementing the builtin patterns.
// Absence of the file is not an error: the builtin set always applies.
func LoadRulesFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pattern rule file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pattern rule file: %w", err)
	}
	return doc.Rules, nil
}

// builtinRules is the always-on pattern set covering every VulnKind named by
// spec.md §3, grounded on production vulnerability-scanner pattern tables in
// the corpus (reentrancy via ETH transfer/callback, tx.origin auth,
// timestamp dependence, unchecked low-level calls, unguarded selfdestruct,
// unguarded delegatecall, unbounded loops, unprotected withdrawals, and
// commit-reveal/front-running smells).
func builtinRules() []Rule {
	return []Rule{
		{
			ID: "REENTRANCY-ETH", Name: "Reentrancy via ETH transfer",
			Description: "external call sends ETH before state update",
			Kind: model.VulnReentrancy, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			SourcePatterns: []string{
				`\.call\{value:\s*[\w.]+\}\s*\(""\)`,
				`\.call\.value\(\s*[\w.]+\s*\)\s*\(`,
				`\.send\(\s*[\w.]+\s*\)`,
				`\.transfer\(\s*[\w.]+\s*\)`,
			},
			SafePatterns: []string{`ReentrancyGuard`, `nonReentrant`, `locked\s*=\s*true`},
		},
		{
			ID: "REENTRANCY-CALLBACK", Name: "Reentrancy via ERC callback",
			Description: "ERC-721/1155 receiver hooks may re-enter before state update",
			Kind: model.VulnReentrancy, Severity: model.SeverityHigh, Confidence: model.ConfidenceMedium,
			SourcePatterns: []string{`onERC721Received`, `onERC1155Received`, `onERC1155BatchReceived`},
			SafePatterns:   []string{`ReentrancyGuard`, `nonReentrant`},
		},
		{
			ID: "INT-OVERFLOW-UNCHECKED", Name: "Arithmetic in an unchecked block",
			Description: "unchecked { } suppresses overflow/underflow reverts",
			Kind: model.VulnIntegerOverflow, Severity: model.SeverityMedium, Confidence: model.ConfidenceMedium,
			SourcePatterns: []string{`unchecked\s*\{`},
		},
		{
			ID: "INT-OVERFLOW-PRE08", Name: "Arithmetic without SafeMath pre-0.8",
			Description: "pragma below 0.8 without a SafeMath-style import",
			Kind: model.VulnIntegerOverflow, Severity: model.SeverityHigh, Confidence: model.ConfidenceLow,
			SourcePatterns: []string{`pragma solidity\s*\^?0\.[4-7]\.`},
			SafePatterns:   []string{`SafeMath`, `using SafeMath`},
		},
		{
			ID: "TX-ORIGIN-AUTH", Name: "tx.origin used for authorization",
			Description: "tx.origin is phishable via a malicious intermediate contract",
			Kind: model.VulnTxOrigin, Severity: model.SeverityHigh, Confidence: model.ConfidenceHigh,
			SourcePatterns: []string{`tx\.origin\s*==`, `require\(\s*tx\.origin`},
		},
		{
			ID: "TIMESTAMP-DEPENDENCE", Name: "block.timestamp used for critical logic",
			Description: "miners can influence block.timestamp by up to ~15 seconds",
			Kind: model.VulnTimestampDependence, Severity: model.SeverityLow, Confidence: model.ConfidenceMedium,
			SourcePatterns: []string{`block\.timestamp`, `\bnow\b`},
		},
		{
			ID: "UNCHECKED-CALL", Name: "Unchecked low-level call return value",
			Description: "return value of .call(...) is not checked",
			Kind: model.VulnUncheckedCall, Severity: model.SeverityMedium, Confidence: model.ConfidenceMedium,
			SourcePatterns: []string{`\.call\{[^}]*\}\(`, `\.call\(`},
			SafePatterns:   []string{`\(bool\s+\w+,\s*[^)]*\)\s*=\s*\w+\.call`, `require\(\s*success`},
		},
		{
			ID: "SUICIDAL-UNGUARDED", Name: "Unguarded selfdestruct",
			Description: "selfdestruct reachable without an access-control modifier",
			Kind: model.VulnSuicidal, Severity: model.SeverityCritical, Confidence: model.ConfidenceHigh,
			SourcePatterns: []string{`selfdestruct\s*\(`, `suicide\s*\(`},
			SafePatterns:   []string{`onlyOwner`, `onlyAdmin`, `require\(\s*msg\.sender\s*==\s*owner`},
		},
		{
			ID: "DELEGATECALL-UNSAFE", Name: "delegatecall to a non-constant target",
			Description: "delegatecall target is derived from user input or storage, not a fixed constant",
			Kind: model.VulnUnsafeDelegatecall, Severity: model.SeverityCritical, Confidence: model.ConfidenceMedium,
			SourcePatterns: []string{`\.delegatecall\(`},
		},
		{
			ID: "GAS-LIMIT-LOOP", Name: "Unbounded loop over dynamic storage array",
			Description: "iterating a growable storage array can exceed the block gas limit",
			Kind: model.VulnGasLimitLoop, Severity: model.SeverityMedium, Confidence: model.ConfidenceLow,
			SourcePatterns: []string{`for\s*\([^)]*;\s*\w+\s*<\s*\w+\.length\s*;`},
		},
		{
			ID: "WITHDRAWAL-UNPROTECTED", Name: "Withdrawal function without access control",
			Description: "a function named withdraw/sweep lacks an owner/role modifier",
			Kind: model.VulnUnprotectedWithdrawal, Severity: model.SeverityHigh, Confidence: model.ConfidenceLow,
			SourcePatterns: []string{`function\s+(withdraw|sweep|rescue)\w*\s*\([^)]*\)\s*(external|public)`},
			SafePatterns:   []string{`onlyOwner`, `onlyAdmin`, `require\(\s*msg\.sender\s*==`},
		},
		{
			ID: "FRONT-RUNNING-COMMIT", Name: "Price/outcome-sensitive action without commit-reveal",
			Description: "a function taking a bid/price as a plain argument is front-runnable via mempool observation",
			Kind: model.VulnFrontRunning, Severity: model.SeverityLow, Confidence: model.ConfidenceLow,
			SourcePatterns: []string{`function\s+(bid|buy|claim|redeem)\w*\s*\(`},
			SafePatterns:   []string{`commit`, `reveal`},
		},
	}
}
