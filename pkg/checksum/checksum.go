package checksum

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Compute hashes an ordered field concatenation. Fields are joined with a
// separator unlikely to occur in content so "ab"+"c" and "a"+"bc" stay
// distinct.
func Compute(fields ...string) string {
	h, _ := blake2b.New256(nil)
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Note builds the canonical checksum input for a note's identity-bearing
// fields.
func Note(id, title, content, category string, tags []string, version int64) string {
	return Compute(id, title, content, category, strings.Join(tags, ","), strconv.FormatInt(version, 10))
}
