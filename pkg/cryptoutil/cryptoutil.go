// Package cryptoutil provides the crypto-adjacent helpers the auth module
// needs: a cryptographically random CSRF state token and PKCE verifier
///challenge generation. It deliberately stays narrow — the injected crypto
// capability described by spec.md is a caller concern; this package is
// what the core itself, not its host, needs to produce random state.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

// NewState returns a cryptographically random CSRF state token, generalized
// from the storage package's NewID helper (crypto/rand seeded, base64
// encoded here instead of base32 since it never needs to satisfy a
// Kubernetes name constraint).
func NewState() string {
	return randomToken(16)
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// PKCE holds a verifier/challenge pair for providers (Google Drive) that
// support PKCE in addition to a client secret.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh S256 PKCE pair.
func NewPKCE() PKCE {
	verifier := randomToken(32)
	sum := sha256.Sum256([]byte(verifier))
	return PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
		Method:    "S256",
	}
}
