package store

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var (
	lineNumberRe = regexp.MustCompile(`:\d+(:\d+)?`)
	hexIDRe      = regexp.MustCompile(`\b(?:[0-9a-fA-F]{8,}|\d+)\b`)
	pathRe       = regexp.MustCompile(`(?:/[^\s/]+)+/([^\s/]+\.\w+)`)
)

// ErrorFingerprint normalizes line numbers, absolute file paths (to
// basename), and hex/numeric ids out of errType+stack, then hashes the
// result. Inputs differing only in those details produce identical
// fingerprints — used by QueryErrorGroups to group spans/events by error
// shape rather than by exact text.
func ErrorFingerprint(errType, stack string) string {
	normalized := stack
	normalized = pathRe.ReplaceAllString(normalized, "$1")
	normalized = lineNumberRe.ReplaceAllString(normalized, "")
	normalized = hexIDRe.ReplaceAllString(normalized, "<id>")

	h := sha256.New()
	h.Write([]byte(errType))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
