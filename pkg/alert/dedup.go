package alert

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// DedupKey derives dedup_key = hash(event.source, event.type, rule.id),
// matching store.ErrorFingerprint's hash-and-hex-encode shape.
func DedupKey(e argusmodel.Event, ruleID string) string {
	h := sha256.New()
	h.Write([]byte(e.Source))
	h.Write([]byte{0})
	h.Write([]byte(e.Type))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	return hex.EncodeToString(h.Sum(nil))
}
