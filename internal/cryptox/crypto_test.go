package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("storage-secret")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != keySize {
		t.Errorf("expected %d byte key, got %d", keySize, len(key1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	secret := []byte("storage-secret")

	key1 := DeriveKey(secret, []byte("salt-1"))
	key2 := DeriveKey(secret, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))

	blob, err := Seal([]byte("eyJhbGciOi.payload.sig"), key)
	require.NoError(t, err)
	require.NotContains(t, string(blob), "payload")

	plain, err := Open(blob, key)
	require.NoError(t, err)
	require.Equal(t, "eyJhbGciOi.payload.sig", string(plain))
}

func TestSeal_FreshNonceEachTime(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))

	a, err := Seal([]byte("same"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("same"), key)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestOpen_Failures(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))
	other := DeriveKey([]byte("other"), []byte("salt"))

	blob, err := Seal([]byte("token"), key)
	require.NoError(t, err)

	_, err = Open(blob, other)
	require.Error(t, err, "wrong key must not open")

	_, err = Open([]byte{1, 2}, key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = Open(tampered, key)
	require.Error(t, err)

	_, err = Seal([]byte("x"), []byte("short"))
	require.Error(t, err, "invalid AES key size")
}
