// Package signing implements the two low-level security primitives the rest
// of the core depends on: Ed25519 webhook signature verification and
// per-job bearer token generation, both constant-time against their
// attacker-controlled inputs.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// MaxClockSkewSeconds is the replay window for webhook signature freshness.
const MaxClockSkewSeconds = 5

// VerifyWebhook checks an Ed25519 signature over timestamp||body using the
// given hex-encoded public key and hex-encoded signature. now is the
// verifier's current Unix time in seconds. It never panics: any malformed
// input (bad hex, wrong-length key/signature, non-numeric timestamp, stale
// timestamp, failed verification) returns false.
func VerifyWebhook(publicKeyHex, signatureHex, timestamp string, body []byte, now int64) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkewSeconds {
		return false
	}

	pubKey, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	message := make([]byte, 0, len(timestamp)+len(body))
	message = append(message, timestamp...)
	message = append(message, body...)

	return ed25519.Verify(ed25519.PublicKey(pubKey), message, sig)
}

// GenerateToken returns a fresh 64-character lower-case hex token derived
// from 32 cryptographically random bytes.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ConstantTimeEqual reports whether a and b are equal, comparing in time
// independent of where they first differ once lengths match. Our tokens are
// a fixed 64 chars, so the length check below never discriminates a real
// token from a forged one.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
