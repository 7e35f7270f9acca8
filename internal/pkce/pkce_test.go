package pkce

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChallengeKnownVector(t *testing.T) {
	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))
}

func TestVerifyChallenge(t *testing.T) {
	verifier, err := GenerateVerifier()
	require.NoError(t, err)

	require.True(t, VerifyChallenge(verifier, Challenge(verifier)))
	require.False(t, VerifyChallenge(verifier+"x", Challenge(verifier)))
	require.False(t, VerifyChallenge(verifier, ""))
}

func TestGenerateVerifierUnique(t *testing.T) {
	a, err := GenerateVerifier()
	require.NoError(t, err)
	b, err := GenerateVerifier()
	require.NoError(t, err)

	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
}
