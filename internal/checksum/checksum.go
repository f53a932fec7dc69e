// Package checksum fingerprints audio payloads and derives HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns sum as a strong entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// Matches reports whether an If-None-Match header value names sum.
func Matches(ifNoneMatch, sum string) bool {
	if ifNoneMatch == "" || sum == "" {
		return false
	}
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == "*" || strings.Trim(tag, `"`) == sum {
			return true
		}
	}
	return false
}
