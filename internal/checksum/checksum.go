package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the hex-encoded SHA-256 digest of the canonical JSON
// encoding of v. encoding/json sorts map keys, so two calls with equal
// argument maps produce the same fingerprint regardless of insertion order.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("checksum: encode fingerprint: %w", err)
	}
	return Sum(data), nil
}
