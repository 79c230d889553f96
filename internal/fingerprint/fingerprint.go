// Package fingerprint computes the cache key used to deduplicate TTS
// synthesis requests across concurrent sentence streams.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fieldSeparator is a unit separator — never legal in model names, voice
// names, or the segmented text itself — so it can't be used to forge a
// collision by shifting characters across field boundaries.
const fieldSeparator = "\x1f"

// Compute returns the cache key for a (model, voice, text) triple. Text is
// Unicode-normalized (NFC) and whitespace-trimmed first, so that two
// sentences differing only in how a client's LLM happened to compose
// combining characters, or in incidental leading/trailing whitespace, still
// land on the same cache entry.
func Compute(model, voice, text string) string {
	normalized := norm.NFC.String(strings.TrimSpace(text))
	joined := model + fieldSeparator + voice + fieldSeparator + normalized
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
