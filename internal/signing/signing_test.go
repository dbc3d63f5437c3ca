package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// referenceSeed is the RFC 8032 / Discord reference test vector used by the
// original implementation to pin this algorithm to the standard Ed25519
// construction rather than an implementation detail.
var referenceSeed = []byte{
	0xc5, 0xaa, 0x8d, 0xf4, 0x3f, 0x9f, 0x83, 0x7b, 0xed, 0xb7, 0x44, 0x2f, 0x31, 0xdc,
	0xb7, 0xb1, 0x66, 0xd3, 0x85, 0x35, 0x07, 0x6f, 0x09, 0x4b, 0x85, 0xce, 0x3a, 0x2e,
	0x0b, 0x44, 0x58, 0xf7,
}

func signMessage(t *testing.T, seed []byte, timestamp string, body []byte) (pubHex, sigHex string) {
	t.Helper()
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	msg := append([]byte(timestamp), body...)
	sig := ed25519.Sign(priv, msg)
	return hex.EncodeToString(pub), hex.EncodeToString(sig)
}

func TestVerifyWebhook_ReferenceVector(t *testing.T) {
	const timestamp = "1609459200"
	const now int64 = 1609459200
	body := []byte(`{"type":1}`)

	pubHex, sigHex := signMessage(t, referenceSeed, timestamp, body)

	require.True(t, VerifyWebhook(pubHex, sigHex, timestamp, body, now), "reference vector should verify")
	require.False(t, VerifyWebhook(pubHex, sigHex, timestamp, []byte(`{"type":2}`), now), "tampered body should fail")
}

func TestVerifyWebhook_StalenessBoundary(t *testing.T) {
	const timestamp = "1609459200"
	const now int64 = 1609459200
	body := []byte(`{"type":1}`)
	pubHex, sigHex := signMessage(t, referenceSeed, timestamp, body)

	require.False(t, VerifyWebhook(pubHex, sigHex, timestamp, body, now+6), "6s stale must fail")
	require.True(t, VerifyWebhook(pubHex, sigHex, timestamp, body, now+5), "5s boundary must still pass")
	require.True(t, VerifyWebhook(pubHex, sigHex, timestamp, body, now-5), "5s in the future must still pass")
}

func TestVerifyWebhook_Tampering(t *testing.T) {
	const timestamp = "1609459200"
	const now int64 = 1609459200
	body := []byte(`{"type":1}`)
	pubHex, sigHex := signMessage(t, referenceSeed, timestamp, body)

	sigBytes, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	tampered := append([]byte(nil), sigBytes...)
	tampered[0] ^= 0xff
	require.False(t, VerifyWebhook(pubHex, hex.EncodeToString(tampered), timestamp, body, now))

	pubBytes, err := hex.DecodeString(pubHex)
	require.NoError(t, err)
	badPub := append([]byte(nil), pubBytes...)
	badPub[0] ^= 0xff
	require.False(t, VerifyWebhook(hex.EncodeToString(badPub), sigHex, timestamp, body, now))

	require.False(t, VerifyWebhook(pubHex, sigHex, "160945920x", body, now))
}

func TestVerifyWebhook_MalformedInputsNeverPanic(t *testing.T) {
	cases := []struct {
		pub, sig, ts string
		body         []byte
	}{
		{"", "", "1609459200", []byte("x")},
		{"not-hex", "also-not-hex", "1609459200", []byte("x")},
		{"aa", "bb", "1609459200", []byte("x")},
		{"", "", "", nil},
	}
	for _, c := range cases {
		require.NotPanics(t, func() {
			require.False(t, VerifyWebhook(c.pub, c.sig, c.ts, c.body, 1609459200))
		})
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	require.NoError(t, err)
	require.Len(t, tok, 64)
	_, err = hex.DecodeString(tok)
	require.NoError(t, err)

	tok2, err := GenerateToken()
	require.NoError(t, err)
	require.NotEqual(t, tok, tok2)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual("abc", "abc"))
	require.False(t, ConstantTimeEqual("abc", "abd"))
	require.False(t, ConstantTimeEqual("abc", "abcd"))
	require.True(t, ConstantTimeEqual("", ""))
}
