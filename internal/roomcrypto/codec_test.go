package roomcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestCodec_RoundTrip(t *testing.T) {
	key := testKey(0x42)

	messages := []string{
		"",
		"hi",
		"héllo wörld, 你好, مرحبا 👋",
		"line one\nline two\ttabbed\x00nul\x1b[31mescape",
		string(bytes.Repeat([]byte("long message "), 1000)),
	}

	for _, m := range messages {
		blob, err := Encrypt(key, m)
		require.NoError(t, err)

		got, err := Decrypt(key, blob)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestCodec_FreshNoncePerMessage(t *testing.T) {
	key := testKey(0x01)

	a, err := Encrypt(key, "same text")
	require.NoError(t, err)
	b, err := Encrypt(key, "same text")
	require.NoError(t, err)

	assert.NotEqual(t, a[:12], b[:12], "nonces must differ")
	assert.NotEqual(t, a, b)
}

func TestCodec_CrossKeyFails(t *testing.T) {
	blob, err := Encrypt(testKey(0x01), "secret")
	require.NoError(t, err)

	_, err = Decrypt(testKey(0x02), blob)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestCodec_TamperedBlobFails(t *testing.T) {
	key := testKey(0x07)
	blob, err := Encrypt(key, "do not touch")
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff

	_, err = Decrypt(key, blob)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestCodec_MalformedBlob(t *testing.T) {
	key := testKey(0x07)

	for _, blob := range [][]byte{nil, {}, []byte("short"), make([]byte, 27)} {
		_, err := Decrypt(key, blob)
		assert.ErrorIs(t, err, model.ErrDecryptionFailed)
	}
}

func TestCodec_InvalidKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("too short"), "x")
	assert.ErrorIs(t, err, model.ErrInvalidKey)

	_, err = Decrypt([]byte("too short"), make([]byte, 64))
	assert.ErrorIs(t, err, model.ErrInvalidKey)
}

func TestCodec_WithDerivedKey(t *testing.T) {
	d := NewKeyDeriver(fastParams)
	secret, err := NewSecret("room pw")
	require.NoError(t, err)

	key, err := d.DeriveKey(secret)
	require.NoError(t, err)
	blob, err := Encrypt(key, "stored at rest")
	require.NoError(t, err)

	again, err := d.DeriveKey(secret)
	require.NoError(t, err)
	got, err := Decrypt(again, blob)
	require.NoError(t, err)
	assert.Equal(t, "stored at rest", got)
}
