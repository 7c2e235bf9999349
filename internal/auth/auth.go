// Package auth carries the pieces shared by the provider sign-in flows:
// the token set produced by a successful flow, state-nonce generation, and
// the common flow error values.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenSet is the result of a completed sign-in flow. It is handed to the
// credential store after the flow fully succeeds and is never written
// partially.
type TokenSet struct {
	// AccessToken authenticates API requests. Empty when IsGuest is true.
	AccessToken string
	// RefreshToken is present only for providers whose flow issues one.
	RefreshToken string
	// Username is the provider-reported display name. May be empty for a
	// signed-in account whose profile carries no usable name.
	Username string
	// IsGuest marks the unauthenticated fallback identity used when no
	// client credentials are configured.
	IsGuest bool
}

// stateEntropyBytes is the amount of randomness behind each state nonce.
// 32 bytes clears the 24-byte floor the flows require for CSRF protection.
const stateEntropyBytes = 32

// GenerateState returns a fresh URL-safe state nonce. Each sign-in attempt
// gets its own nonce; the redirect's state parameter must match it exactly.
func GenerateState() (string, error) {
	buf := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
