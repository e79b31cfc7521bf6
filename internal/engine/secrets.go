package engine

import (
	"regexp"
	"strings"
)

// secretPatterns match credential-like material that must never be stored,
// whatever the decision outcome would otherwise be.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(password|passwd|passphrase)\b\s*(is|:|=)`),
	regexp.MustCompile(`(?i)\b(api[_ -]?key|secret[_ -]?key|access[_ -]?token|auth[_ -]?token)\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{20,}\b`),
}

// looksLikeSecret reports whether content appears to contain a credential.
func looksLikeSecret(content string) bool {
	if strings.Contains(content, "-----BEGIN") && strings.Contains(content, "PRIVATE KEY") {
		return true
	}
	for _, p := range secretPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}
