// Package ethutil provides hex/address validation helpers shared by the
// resolver, deployer, and verifier components.
package ethutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ValidateAddress checks that s is a 0x-prefixed, 20-byte hex address and
// returns its canonical lowercased form (spec.md §3 DeploymentRecord
// invariant: contractAddress is "20-byte hex, 0x-prefixed, lowercased").
func ValidateAddress(s string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != 40 {
		return "", fmt.Errorf("address must be 20 bytes (40 hex chars), got %d chars", len(trimmed))
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return "0x" + strings.ToLower(trimmed), nil
}

// ValidateTxHash checks that s is a 0x-prefixed, 32-byte hex transaction
// hash.
func ValidateTxHash(s string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != 64 {
		return "", fmt.Errorf("tx hash must be 32 bytes (64 hex chars), got %d chars", len(trimmed))
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("invalid hex tx hash %q: %w", s, err)
	}
	return "0x" + strings.ToLower(trimmed), nil
}

// ExtractAddressFromURL pulls a 20-byte hex address tail out of an explorer
// web link such as ".../address/0xabc...", ".../token/0xabc...",
// ".../contract/0xabc...", or ".../tx/0xabc..." — or any bare 40-hex-char
// tail (spec.md §4.1 edge cases).
func ExtractAddressFromURL(s string) (string, bool) {
	candidates := []string{s}
	if idx := strings.LastIndexAny(s, "/"); idx >= 0 {
		candidates = append(candidates, s[idx+1:])
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if addr, err := ValidateAddress(c); err == nil {
			return addr, true
		}
	}
	return "", false
}
