// Package pkce implements the RFC 7636 S256 code challenge.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Challenge computes the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyChallenge reports whether the verifier hashes to the stored
// challenge. This is the sole proof that whoever redeems a code is the
// party that initiated the authorize request.
func VerifyChallenge(verifier, challenge string) bool {
	return Challenge(verifier) == challenge
}

// GenerateVerifier returns a 43-character URL-safe code verifier.
func GenerateVerifier() (string, error) {
	return randomURLSafe(32)
}

// GenerateState returns a random state parameter for CSRF protection.
func GenerateState() (string, error) {
	return randomURLSafe(32)
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
