// Package biometric runs the platform-authenticator ceremony (WebAuthn) used
// as the first login factor. It issues challenges, keeps the server-side
// ceremony state in a form the session can carry, and delegates signature
// and attestation verification to go-webauthn.
package biometric

import (
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors. Callers route ErrNoCredential to the click fallback and
// treat ErrVerificationFailed as a retryable factor failure.
var (
	ErrNoCredential       = errors.New("no biometric credential registered")
	ErrVerificationFailed = errors.New("biometric verification failed")
)

// Challenge is one outstanding ceremony. Options go to the browser; State
// stays on the server and is consumed by exactly one verification.
type Challenge struct {
	// Value is the base64url challenge the authenticator must sign.
	Value string `json:"value"`

	// Options is the PublicKeyCredentialCreationOptions or
	// PublicKeyCredentialRequestOptions payload, JSON encoded.
	Options json.RawMessage `json:"options"`

	// State is the encoded server-side ceremony data. Never sent to clients.
	State json.RawMessage `json:"state"`

	// ExpiresAt is when the ceremony times out.
	ExpiresAt time.Time `json:"expires_at"`
}

// Assertion is the result of a verified login ceremony.
type Assertion struct {
	// SignCount is the authenticator's signature counter from this login.
	SignCount uint32

	// CloneWarning is set when the counter did not advance past the stored
	// value, which happens when a credential is used from a copied
	// authenticator.
	CloneWarning bool
}

// Expired reports whether the ceremony timed out at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
