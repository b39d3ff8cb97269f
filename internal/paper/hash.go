package paper

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashText returns the hex BLAKE2b-256 digest of text. It is the content
// hash used to deduplicate papers and to detect chunk text drift in
// embedding mappings.
func HashText(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
