package source

import (
	"regexp"
	"strings"

	"github.com/hyperion-agent/contractforge/internal/ethutil"
)

// IdentifierKind distinguishes the three ways a contract can be identified
// for fetch (spec.md §4.1).
type IdentifierKind string

const (
	IdentifierLocalFile IdentifierKind = "local_file"
	IdentifierAddress   IdentifierKind = "address"
	IdentifierRawSource IdentifierKind = "raw_source"
)

// Identifier is the parsed form of a caller-supplied contract identifier.
type Identifier struct {
	Kind    IdentifierKind
	Path    string // for IdentifierLocalFile
	Address string // for IdentifierAddress, 0x-lowercased
	Raw     string // for IdentifierRawSource
}

// explorerLinkRE matches explorer web links of the shape
// "<scheme>://host/{address,token,contract,tx}/0x<40 hex>".
var explorerLinkRE = regexp.MustCompile(`(?i)/(address|token|contract|tx)/(0x[0-9a-fA-F]{40})`)

// ParseIdentifier classifies a raw identifier string into Local, Address, or
// RawSource, extracting a 20-byte address out of explorer URLs via the
// patterns of spec.md §4.1 ("address/", "token/", "contract/", "tx/", or any
// 40-hex-character tail").
func ParseIdentifier(raw string) Identifier {
	trimmed := strings.TrimSpace(raw)

	if strings.Contains(trimmed, "://") {
		if m := explorerLinkRE.FindStringSubmatch(trimmed); m != nil {
			if addr, err := ethutil.ValidateAddress(m[2]); err == nil {
				return Identifier{Kind: IdentifierAddress, Address: addr}
			}
		}
		if addr, ok := ethutil.ExtractAddressFromURL(trimmed); ok {
			return Identifier{Kind: IdentifierAddress, Address: addr}
		}
	}

	if addr, err := ethutil.ValidateAddress(trimmed); err == nil {
		return Identifier{Kind: IdentifierAddress, Address: addr}
	}

	if looksLikePath(trimmed) {
		return Identifier{Kind: IdentifierLocalFile, Path: trimmed}
	}

	return Identifier{Kind: IdentifierRawSource, Raw: trimmed}
}

func looksLikePath(s string) bool {
	if strings.HasSuffix(s, ".sol") {
		return true
	}
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}
