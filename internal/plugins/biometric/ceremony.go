package biometric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/keyxmakerx/tessera/internal/config"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

// Ceremony issues and verifies biometric challenges for a user record.
type Ceremony interface {
	// IssueRegistrationChallenge starts enrolment of a platform authenticator.
	IssueRegistrationChallenge(ctx context.Context, user *users.UserRecord) (*Challenge, error)

	// IssueAuthenticationChallenge starts a login ceremony scoped to the one
	// credential on file. Returns ErrNoCredential if there is none.
	IssueAuthenticationChallenge(ctx context.Context, user *users.UserRecord) (*Challenge, error)

	// VerifyRegistration checks the authenticator's attestation response and
	// returns the encoded credential to persist.
	VerifyRegistration(ctx context.Context, user *users.UserRecord, challenge *Challenge, response []byte) ([]byte, error)

	// VerifyAuthentication checks an assertion signed by the stored credential.
	VerifyAuthentication(ctx context.Context, user *users.UserRecord, challenge *Challenge, response []byte) (*Assertion, error)
}

// provider is the subset of *webauthn.WebAuthn used here.
type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// parser decodes raw browser responses.
type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type protocolParser struct{}

func (protocolParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (protocolParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// webAuthnCeremony implements Ceremony with go-webauthn.
type webAuthnCeremony struct {
	wa      provider
	parser  parser
	timeout time.Duration
	now     func() time.Time
}

// NewCeremony builds a Ceremony for the configured relying party. The
// ceremony timeout is enforced both by go-webauthn and by Challenge.ExpiresAt.
func NewCeremony(cfg config.WebAuthnConfig) (Ceremony, error) {
	timeout := webauthn.TimeoutConfig{
		Enforce:    true,
		Timeout:    cfg.Timeout,
		TimeoutUVD: cfg.Timeout,
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        timeout,
			Registration: timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	return &webAuthnCeremony{
		wa:      wa,
		parser:  protocolParser{},
		timeout: cfg.Timeout,
		now:     time.Now,
	}, nil
}

// IssueRegistrationChallenge asks for a platform-bound authenticator with
// user verification preferred and no attestation.
func (c *webAuthnCeremony) IssueRegistrationChallenge(_ context.Context, user *users.UserRecord) (*Challenge, error) {
	u, err := newWebAuthnUser(user)
	if err != nil {
		return nil, err
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	}
	if len(u.credentials) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(u.credentials).CredentialDescriptors()))
	}

	creation, session, err := c.wa.BeginRegistration(u, opts...)
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}
	return c.challenge(creation, session)
}

// IssueAuthenticationChallenge scopes the assertion to the stored credential.
func (c *webAuthnCeremony) IssueAuthenticationChallenge(_ context.Context, user *users.UserRecord) (*Challenge, error) {
	if !user.HasCredential() {
		return nil, ErrNoCredential
	}
	u, err := newWebAuthnUser(user)
	if err != nil {
		return nil, err
	}

	assertion, session, err := c.wa.BeginLogin(u, webauthn.WithUserVerification(protocol.VerificationPreferred))
	if err != nil {
		return nil, fmt.Errorf("beginning login: %w", err)
	}
	return c.challenge(assertion, session)
}

// VerifyRegistration validates the attestation and returns the credential
// encoded as JSON for the user record.
func (c *webAuthnCeremony) VerifyRegistration(_ context.Context, user *users.UserRecord, challenge *Challenge, response []byte) ([]byte, error) {
	session, err := c.session(challenge)
	if err != nil {
		return nil, err
	}
	u, err := newWebAuthnUser(user)
	if err != nil {
		return nil, err
	}

	parsed, err := c.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrVerificationFailed, err)
	}
	credential, err := c.wa.CreateCredential(u, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	encoded, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("encoding credential: %w", err)
	}
	return encoded, nil
}

// VerifyAuthentication validates an assertion against the stored credential.
// The counter check is reported in the Assertion; the record is not updated.
func (c *webAuthnCeremony) VerifyAuthentication(_ context.Context, user *users.UserRecord, challenge *Challenge, response []byte) (*Assertion, error) {
	if !user.HasCredential() {
		return nil, ErrNoCredential
	}
	session, err := c.session(challenge)
	if err != nil {
		return nil, err
	}
	u, err := newWebAuthnUser(user)
	if err != nil {
		return nil, err
	}

	parsed, err := c.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrVerificationFailed, err)
	}
	credential, err := c.wa.ValidateLogin(u, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return &Assertion{
		SignCount:    credential.Authenticator.SignCount,
		CloneWarning: credential.Authenticator.CloneWarning,
	}, nil
}

// challenge packages the browser options and ceremony state.
func (c *webAuthnCeremony) challenge(options any, session *webauthn.SessionData) (*Challenge, error) {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encoding ceremony state: %w", err)
	}

	expires := session.Expires
	if expires.IsZero() {
		expires = c.now().Add(c.timeout)
	}
	return &Challenge{
		Value:     session.Challenge,
		Options:   optionsJSON,
		State:     stateJSON,
		ExpiresAt: expires.UTC(),
	}, nil
}

// session decodes the ceremony state, rejecting missing or expired challenges.
func (c *webAuthnCeremony) session(challenge *Challenge) (*webauthn.SessionData, error) {
	if challenge == nil || len(challenge.State) == 0 {
		return nil, fmt.Errorf("%w: no challenge pending", ErrVerificationFailed)
	}
	if challenge.Expired(c.now()) {
		return nil, fmt.Errorf("%w: challenge expired", ErrVerificationFailed)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.State, &session); err != nil {
		return nil, fmt.Errorf("%w: decoding ceremony state: %v", ErrVerificationFailed, err)
	}
	if session.Challenge != challenge.Value {
		return nil, fmt.Errorf("%w: challenge mismatch", ErrVerificationFailed)
	}
	return &session, nil
}
