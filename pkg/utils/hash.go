package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashStrings returns a stable hex digest of the parts, separated so that
// ("ab", "c") and ("a", "bc") differ.
func HashStrings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
