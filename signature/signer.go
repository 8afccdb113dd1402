// Package signature provides HMAC-SHA256 webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Version is the scheme prefix of every signature.
const Version = "v1"

// Sign generates the HMAC-SHA256 signature for the given payload.
// The content to sign is "{timestamp}.{payload}".
// Returns a versioned signature in the format "v1=<hex>".
func Sign(payload []byte, secret string, timestamp int64) string {
	return sign(payload, secret, strconv.FormatInt(timestamp, 10))
}

// Verify checks whether sig matches the expected signature for the payload,
// secret, and timestamp. It does not check the timestamp's age.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	return equal(Sign(payload, secret, timestamp), sig)
}

// sign binds the timestamp exactly as it was transmitted.
func sign(payload []byte, secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return Version + "=" + hex.EncodeToString(mac.Sum(nil))
}

func equal(expected, sig string) bool {
	return hmac.Equal([]byte(expected), []byte(sig))
}
