// Package knol derives stable names from content, so the same text always
// lands on the same record ID.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// NameLength is the number of hex digits kept by Name.
const NameLength = 12

// Normalize cleans each part and joins them. Each part is lowercased, trimmed
// and has its line endings normalised.
func Normalize(parts ...string) string {
	clean := make([]string, len(parts))
	for i, part := range parts {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		clean[i] = p
	}

	// Newline separation keeps ("ab", "c") and ("a", "bc") apart.
	return strings.Join(clean, "\n")
}

// Hash returns the SHA-256 of the normalised parts as a hex string.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(Normalize(parts...)))
	return fmt.Sprintf("%x", sum)
}

// Name returns a short path-safe segment derived from Hash.
func Name(parts ...string) string {
	return Hash(parts...)[:NameLength]
}
