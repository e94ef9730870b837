// Package base64url implements the unpadded URL-safe Base64 alphabet (RFC 4648 §5)
// used for every key, salt and token exchanged with browsers and push services.
package base64url

import (
	"encoding/base64"
	"strings"
)

// Encode returns the unpadded URL-safe encoding of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode accepts padded or unpadded input. Standard-alphabet characters are
// tolerated since some clients export keys with them.
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(s)
}
