package property

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims s and puts it in Unicode NFC so that visually equal
// reasons compare and hash equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeHash trims a content hash. Content hashes are case-sensitive.
func NormalizeHash(s string) string {
	return strings.TrimSpace(s)
}
