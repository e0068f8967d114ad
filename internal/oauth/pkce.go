package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// ChallengeMethodS256 is the only PKCE challenge method accepted; "plain"
// is rejected per OAuth 2.1.
const ChallengeMethodS256 = "S256"

// ComputeChallenge derives the S256 code challenge for a verifier:
// BASE64URL(SHA-256(verifier)), unpadded.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyChallenge reports whether verifier satisfies the stored challenge.
func VerifyChallenge(verifier, challenge string) bool {
	computed := ComputeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
