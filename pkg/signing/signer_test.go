package signing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyRoundTripsSignature(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("hello order hash")
	sig := signer.Sign(msg)
	require.True(t, VerifySignature(signer.AccountID(), msg, sig))

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	require.False(t, VerifySignature(signer.AccountID(), msg, tampered))
}

func TestFromPrivateKeyHexMatchesOriginal(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	reloaded, err := FromPrivateKeyHex(signer.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, signer.AccountID(), reloaded.AccountID())

	msg := []byte("round trip message")
	sig := reloaded.Sign(msg)
	require.True(t, VerifySignature(signer.AccountID(), msg, sig))
}

func TestFromPrivateKeyHexRejectsBadLength(t *testing.T) {
	_, err := FromPrivateKeyHex("deadbeef")
	require.Error(t, err)
}

func TestVerifySignatureRejectsWrongLength(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)
	require.False(t, VerifySignature(signer.AccountID(), []byte("msg"), []byte{1, 2, 3}))
}
