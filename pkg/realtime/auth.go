// Package realtime is the WebSocket fanout hub (C8): per-channel
// subscription over the teacher's Hub/Client pump pair
// (github.com/gorilla/websocket), generalized from a single global
// broadcast to a public/private channel namespace with wallet-ownership
// proof on private channels.
package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// CredentialTTL bounds how long a login credential remains presentable
// to bind a socket to a wallet.
const CredentialTTL = time.Hour

// Credential proves a client controls wallet, issued by the HTTP login
// path and presented back on a user:<wallet> subscribe frame.
type Credential struct {
	Wallet    string `json:"key"`
	IssuedAt  int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// CredentialIssuer mints and verifies wallet-ownership credentials with
// a server-held HMAC secret; the passphrase spec.md names is this
// secret, never transmitted to the client.
type CredentialIssuer struct {
	secret []byte
}

// NewCredentialIssuer wraps a server secret. The secret should come from
// process configuration, never hardcoded.
func NewCredentialIssuer(secret []byte) *CredentialIssuer {
	return &CredentialIssuer{secret: secret}
}

func (c *CredentialIssuer) sign(wallet string, issuedAt int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s|%d", wallet, issuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue mints a Credential for wallet at the given instant.
func (c *CredentialIssuer) Issue(wallet string, now time.Time) Credential {
	issuedAt := now.Unix()
	return Credential{
		Wallet:    wallet,
		IssuedAt:  issuedAt,
		Signature: c.sign(wallet, issuedAt),
	}
}

// Verify checks that cred authenticates wallet, was signed by this
// issuer, and has not outlived CredentialTTL as of now.
func (c *CredentialIssuer) Verify(wallet string, cred Credential, now time.Time) bool {
	if cred.Wallet != wallet {
		return false
	}
	age := now.Unix() - cred.IssuedAt
	if age < 0 || time.Duration(age)*time.Second > CredentialTTL {
		return false
	}
	want := c.sign(cred.Wallet, cred.IssuedAt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(cred.Signature)) == 1
}
