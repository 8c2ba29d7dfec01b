// Package testutil provides testing utilities and helpers for the oauthcore library.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateRandomString generates a cryptographically random URL-safe string
// of the requested length. Used for test PKCE verifiers, secrets, and state
// parameters.
func GenerateRandomString(length int) string {
	// Generate more bytes than needed to survive base64 trimming
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is unrecoverable in tests
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) > length {
		s = s[:length]
	}
	return s
}

// S256Challenge computes the S256 PKCE code challenge for a verifier (RFC 7636)
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
