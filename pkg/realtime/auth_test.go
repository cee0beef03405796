package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialIssuerRoundTrip(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("server-secret"))
	now := time.Unix(1_700_000_000, 0)

	cred := issuer.Issue("wallet-abc", now)
	require.True(t, issuer.Verify("wallet-abc", cred, now.Add(time.Minute)))
}

func TestCredentialIssuerRejectsWrongWallet(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("server-secret"))
	now := time.Unix(1_700_000_000, 0)

	cred := issuer.Issue("wallet-abc", now)
	require.False(t, issuer.Verify("wallet-xyz", cred, now))
}

func TestCredentialIssuerRejectsTamperedSignature(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("server-secret"))
	now := time.Unix(1_700_000_000, 0)

	cred := issuer.Issue("wallet-abc", now)
	cred.Signature = "00" + cred.Signature[2:]
	require.False(t, issuer.Verify("wallet-abc", cred, now))
}

func TestCredentialIssuerRejectsExpired(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("server-secret"))
	now := time.Unix(1_700_000_000, 0)

	cred := issuer.Issue("wallet-abc", now)
	require.False(t, issuer.Verify("wallet-abc", cred, now.Add(CredentialTTL+time.Minute)))
}

func TestCredentialIssuerRejectsDifferentSecret(t *testing.T) {
	issuerA := NewCredentialIssuer([]byte("secret-a"))
	issuerB := NewCredentialIssuer([]byte("secret-b"))
	now := time.Unix(1_700_000_000, 0)

	cred := issuerA.Issue("wallet-abc", now)
	require.False(t, issuerB.Verify("wallet-abc", cred, now))
}
