package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	plaintexts := [][]byte{
		{},
		[]byte("1//0g-refresh-token"),
		bytes.Repeat([]byte("x"), 4096),
	}
	for _, p := range plaintexts {
		env, err := v.Seal(p)
		require.NoError(t, err)
		got, err := v.Open(env)
		require.NoError(t, err)
		require.Equal(t, len(p), len(got))
		require.True(t, bytes.Equal(p, got))
	}
}

func TestEnvelopeLayoutIsNonceTagCiphertext(t *testing.T) {
	key := testKey()
	v, err := New(key)
	require.NoError(t, err)

	plaintext := []byte("layout-check")
	env, err := v.Seal(plaintext)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)
	require.Len(t, raw, nonceSize+tagSize+len(plaintext))

	// Reassemble as a plain GCM consumer would and decrypt independently.
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]
	got, err := gcm.Open(nil, nonce, append(append([]byte{}, ct...), tag...), nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenDetectsEveryBitFlip(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	env, err := v.Seal([]byte("tamper-me"))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)

	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte{}, raw...)
			mutated[i] ^= 1 << bit
			_, err := v.Open(base64.StdEncoding.EncodeToString(mutated))
			var decErr *DecryptionError
			require.Truef(t, errors.As(err, &decErr), "byte %d bit %d: expected DecryptionError, got %v", i, bit, err)
		}
	}
}

func TestOpenRejectsMalformedEnvelopes(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	cases := map[string]string{
		"not base64": "%%%not-base64%%%",
		"too short":  base64.StdEncoding.EncodeToString(make([]byte, nonceSize+tagSize-1)),
		"empty":      "",
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Open(env)
			var decErr *DecryptionError
			require.ErrorAs(t, err, &decErr)
		})
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	v1, err := New(testKey())
	require.NoError(t, err)
	v2, err := New(bytes.Repeat([]byte{0x07}, KeySize))
	require.NoError(t, err)

	env, err := v1.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = v2.Open(env)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestNilVaultFailsClosed(t *testing.T) {
	var v *Vault
	_, err := v.Open("anything")
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = v.Seal([]byte("x"))
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestNonceUniqueness(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		env, err := v.Seal([]byte("same plaintext"))
		require.NoError(t, err)
		raw, err := base64.StdEncoding.DecodeString(env)
		require.NoError(t, err)
		nonce := string(raw[:nonceSize])
		_, dup := seen[nonce]
		require.Falsef(t, dup, "nonce reused at iteration %d", i)
		seen[nonce] = struct{}{}
	}
	require.Len(t, seen, 10000)
}

func TestNewRejectsMissingAndShortKeys(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = New(make([]byte, 16))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewFromEncoded("   ")
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestDecodeKeyAcceptsBase64AndHex(t *testing.T) {
	key := testKey()

	got, err := DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, got)

	got, err = DecodeKey(base64.RawURLEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, got)

	got, err = DecodeKey(hex.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = DecodeKey(base64.StdEncoding.EncodeToString(key[:20]))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestGenerateKeyProducesUsableKey(t *testing.T) {
	encoded, err := GenerateKey()
	require.NoError(t, err)

	v, err := NewFromEncoded(encoded)
	require.NoError(t, err)
	env, err := v.Seal([]byte("ok"))
	require.NoError(t, err)
	got, err := v.Open(env)
	require.NoError(t, err)
	require.Equal(t, "ok", string(got))
}
