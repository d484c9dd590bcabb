package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

var acceptedPrefixes = []string{"hmac-sha256=", "sha256="}

// Generate returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Generate(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries a valid HMAC-SHA256 of the exact raw
// body. Blank inputs, malformed hex and wrong-length digests all yield false.
func Verify(body []byte, header, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	received := stripPrefix(strings.TrimSpace(header))
	if received == "" {
		return false
	}
	got, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)
	if len(got) != len(want) {
		return false
	}
	return hmac.Equal(want, got)
}

func stripPrefix(header string) string {
	lower := strings.ToLower(header)
	for _, prefix := range acceptedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return header[len(prefix):]
		}
	}
	return header
}
