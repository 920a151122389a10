package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ContentHash returns the SHA-256 digest of the JCS-canonicalized event
// record, prefixed with the algorithm. Two events with identical content
// hash identically regardless of field order or whitespace, so the hash
// is usable for idempotency checks and archive tamper-evidence.
func ContentHash(e *Event) (string, error) {
	raw, err := e.Encode()
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event %s: %w", e.EventID, err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
