// Package auth drives the registration and login flows. Each browser holds a
// FlowSession in Redis; every operation on the AuthService checks the current
// step, verifies one factor, persists the outcome and advances the step.
//
// Registration: email, biometric credential, click pattern, typing baseline,
// passkey reveal. Login: biometric, then clicks as fallback, then passkey and
// typing as step-up, with lockout after MaxStepUpFailures.
package auth

import (
	"time"

	"github.com/keyxmakerx/tessera/internal/plugins/biometric"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

// MaxStepUpFailures is the failure count at which a login attempt locks out.
// A failed click fallback counts towards it.
const MaxStepUpFailures = 2

// RegistrationStep is a position in the registration flow.
type RegistrationStep string

// Registration steps, in order. The zero value is the start state.
const (
	RegistrationStart    RegistrationStep = ""
	EmailCollected       RegistrationStep = "email_collected"
	BiometricRegistered  RegistrationStep = "biometric_registered"
	ClicksCaptured       RegistrationStep = "clicks_captured"
	TypingCalibrated     RegistrationStep = "typing_calibrated"
	RegistrationComplete RegistrationStep = "complete"
)

// LoginStep is a position in the login flow.
type LoginStep string

// Login steps. Authenticated and LockedOut are terminal.
const (
	LoginStart         LoginStep = ""
	EmailSubmitted     LoginStep = "email_submitted"
	BiometricAttempt   LoginStep = "biometric_attempt"
	ClickFallback      LoginStep = "click_fallback"
	StepUp             LoginStep = "step_up"
	LoginAuthenticated LoginStep = "authenticated"
	LockedOut          LoginStep = "locked_out"
)

// Challenge purposes. A pending challenge is only consumed by the flow that
// issued it.
const (
	purposeRegistration = "registration"
	purposeLogin        = "login"
)

// PendingChallenge is a biometric ceremony awaiting its response.
type PendingChallenge struct {
	Purpose string `json:"purpose"`
	biometric.Challenge
}

// FlowSession is the per-browser state of the registration and login flows.
// It is stored in Redis as JSON under its token and never shared across
// browsers. Version counts saves; a copy whose Version is behind the stored
// one cannot be saved.
type FlowSession struct {
	Token   string `json:"-"`
	Version int64  `json:"version"`

	RegistrationEmail string           `json:"registration_email,omitempty"`
	RegistrationStep  RegistrationStep `json:"registration_step,omitempty"`

	// PasskeyToShow holds the freshly issued passkey until it is revealed.
	PasskeyToShow string `json:"passkey_to_show,omitempty"`

	LoginEmail       string            `json:"login_email,omitempty"`
	LoginStep        LoginStep         `json:"login_step,omitempty"`
	LoginFailures    int               `json:"login_failures"`
	StepUpStartedAt  *time.Time        `json:"step_up_started_at,omitempty"`
	PendingChallenge *PendingChallenge `json:"pending_challenge,omitempty"`

	IsAuthenticated    bool       `json:"is_authenticated"`
	AuthenticatedEmail string     `json:"authenticated_email,omitempty"`
	AuthenticatedAt    *time.Time `json:"authenticated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AttemptsLeft is the number of step-up attempts remaining before lockout.
func (s *FlowSession) AttemptsLeft() int {
	if left := MaxStepUpFailures - s.LoginFailures; left > 0 {
		return left
	}
	return 0
}

// --- Request DTOs (bound from HTTP requests) ---

// EmailRequest starts a registration or login.
type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

// ClicksRequest carries click coordinates on the shared image, in order.
type ClicksRequest struct {
	Points []users.Point `json:"points"`
}

// TypingRequest carries the calibration durations in seconds.
type TypingRequest struct {
	Samples []float64 `json:"samples"`
}

// StepUpRequest is one step-up attempt. Duration is the client-measured
// typing time in seconds; zero means "use the server's timer".
type StepUpRequest struct {
	Passkey  string  `json:"passkey" form:"passkey"`
	Typed    string  `json:"typed" form:"typed"`
	Duration float64 `json:"duration" form:"duration"`
}

// CadenceRequest is a typing duration probe from an authenticated session.
type CadenceRequest struct {
	Duration float64 `json:"duration"`
}

// --- Service results ---

// BiometricResult reports the outcome of a biometric login step. Exactly one
// of Challenge, Fallback or Authenticated is meaningful.
type BiometricResult struct {
	Challenge     *biometric.Challenge
	Fallback      bool
	Authenticated bool
	CloneWarning  bool
}

// ClickResult reports the outcome of the click fallback. MissedPoint is the
// index of the first point outside tolerance, or -1.
type ClickResult struct {
	Authenticated bool
	MissedPoint   int
	AttemptsLeft  int
}

// StepUpResult reports the outcome of a step-up attempt.
type StepUpResult struct {
	Authenticated bool
	LockedOut     bool
	AttemptsLeft  int
}

// Revealed is the one-time registration summary.
type Revealed struct {
	Email   string `json:"email"`
	Passkey string `json:"passkey"`
}
