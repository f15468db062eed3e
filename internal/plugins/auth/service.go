package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/factors/clicks"
	"github.com/keyxmakerx/tessera/internal/factors/passkey"
	"github.com/keyxmakerx/tessera/internal/factors/typing"
	"github.com/keyxmakerx/tessera/internal/plugins/biometric"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

// AuthService runs the registration and login state machines. Every method
// takes the caller's session, checks its step, and saves it before returning
// when the step changed. Factor mismatches are reported in results; errors
// are apperror kinds.
type AuthService interface {
	StartRegistration(ctx context.Context, sess *FlowSession, email string) error
	BeginBiometricRegistration(ctx context.Context, sess *FlowSession) (*biometric.Challenge, error)
	FinishBiometricRegistration(ctx context.Context, sess *FlowSession, response []byte) error
	SaveClickProfile(ctx context.Context, sess *FlowSession, points []users.Point) error
	SaveTypingBaseline(ctx context.Context, sess *FlowSession, samples []float64) error
	CompleteRegistration(ctx context.Context, sess *FlowSession) (*Revealed, error)

	StartLogin(ctx context.Context, sess *FlowSession, email string) error
	BeginBiometricLogin(ctx context.Context, sess *FlowSession) (*BiometricResult, error)
	FinishBiometricLogin(ctx context.Context, sess *FlowSession, response []byte) (*BiometricResult, error)
	VerifyClicks(ctx context.Context, sess *FlowSession, points []users.Point) (*ClickResult, error)
	StepUpStatus(ctx context.Context, sess *FlowSession) (*StepUpResult, error)
	SubmitStepUp(ctx context.Context, sess *FlowSession, req StepUpRequest) (*StepUpResult, error)

	// ProbeCadence checks a typing duration against the fixed band for the
	// authenticated user. It never changes state.
	ProbeCadence(ctx context.Context, sess *FlowSession, duration float64) (bool, error)

	// Logout destroys the session.
	Logout(ctx context.Context, sess *FlowSession) error
}

// authService implements AuthService.
type authService struct {
	users    users.UserService
	ceremony biometric.Ceremony
	analyzer *typing.Analyzer
	sessions SessionStore
	now      func() time.Time
}

// NewAuthService creates the auth state machine.
func NewAuthService(userSvc users.UserService, ceremony biometric.Ceremony, sessions SessionStore) AuthService {
	return &authService{
		users:    userSvc,
		ceremony: ceremony,
		analyzer: typing.NewAnalyzer(userSvc),
		sessions: sessions,
		now:      time.Now,
	}
}

// --- Registration ---

// StartRegistration creates an empty record for email and moves the session
// to EmailCollected. Resubmitting the same email at that step is a no-op.
func (s *authService) StartRegistration(ctx context.Context, sess *FlowSession, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperror.NewValidation("email is required")
	}
	if sess.RegistrationEmail == email && sess.RegistrationStep == EmailCollected {
		return nil
	}

	if _, err := s.users.Create(ctx, email); err != nil {
		return err
	}

	sess.RegistrationEmail = email
	sess.RegistrationStep = EmailCollected
	sess.PasskeyToShow = ""
	s.takeChallenge(sess, purposeRegistration)

	slog.Info("registration started", slog.String("email", email))
	return s.save(ctx, sess)
}

// BeginBiometricRegistration issues a registration challenge, or returns the
// one already pending if it has not expired.
func (s *authService) BeginBiometricRegistration(ctx context.Context, sess *FlowSession) (*biometric.Challenge, error) {
	if err := requireRegistration(sess, EmailCollected); err != nil {
		return nil, err
	}
	if pc := s.pendingChallenge(sess, purposeRegistration); pc != nil {
		return &pc.Challenge, nil
	}

	user, err := s.users.Get(ctx, sess.RegistrationEmail)
	if err != nil {
		return nil, err
	}
	challenge, err := s.ceremony.IssueRegistrationChallenge(ctx, user)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("issuing registration challenge: %w", err))
	}

	sess.PendingChallenge = &PendingChallenge{Purpose: purposeRegistration, Challenge: *challenge}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return challenge, nil
}

// FinishBiometricRegistration verifies the attestation and stores the
// credential. The pending challenge is consumed whatever the outcome.
func (s *authService) FinishBiometricRegistration(ctx context.Context, sess *FlowSession, response []byte) error {
	if err := requireRegistration(sess, EmailCollected); err != nil {
		return err
	}

	pending := s.takeChallenge(sess, purposeRegistration)
	if err := s.save(ctx, sess); err != nil {
		return err
	}
	if pending == nil {
		return apperror.NewPrecondition("no fingerprint challenge is pending, please start again").
			WithNext("/api/v1/register/biometric/options")
	}

	user, err := s.users.Get(ctx, sess.RegistrationEmail)
	if err != nil {
		return err
	}
	credential, err := s.ceremony.VerifyRegistration(ctx, user, &pending.Challenge, response)
	if errors.Is(err, biometric.ErrVerificationFailed) {
		slog.Info("biometric registration rejected",
			slog.String("email", sess.RegistrationEmail),
			slog.Any("error", err),
		)
		return apperror.NewVerificationFailed("fingerprint verification failed, please try again")
	}
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("verifying registration: %w", err))
	}

	if err := s.users.Update(ctx, sess.RegistrationEmail, users.SetBiometricCredential(credential)); err != nil {
		return err
	}
	sess.RegistrationStep = BiometricRegistered
	return s.save(ctx, sess)
}

// SaveClickProfile stores the three calibration clicks. They may be
// re-captured until typing calibration starts.
func (s *authService) SaveClickProfile(ctx context.Context, sess *FlowSession, points []users.Point) error {
	if err := requireRegistration(sess, BiometricRegistered, ClicksCaptured); err != nil {
		return err
	}
	if err := clicks.Validate(points); err != nil {
		return err
	}

	if err := s.users.Update(ctx, sess.RegistrationEmail, users.SetClickProfile(points)); err != nil {
		return err
	}
	sess.RegistrationStep = ClicksCaptured
	return s.save(ctx, sess)
}

// SaveTypingBaseline stores the calibration samples and their average, then
// issues the recovery passkey. Only the hash is persisted; the plain value
// waits in the session for CompleteRegistration. Resubmitting after the
// passkey was issued does nothing, so a passkey is never generated twice.
func (s *authService) SaveTypingBaseline(ctx context.Context, sess *FlowSession, samples []float64) error {
	if sess.RegistrationStep == TypingCalibrated && sess.PasskeyToShow != "" {
		return nil
	}
	if err := requireRegistration(sess, ClicksCaptured); err != nil {
		return err
	}
	if err := typing.ValidateSamples(samples); err != nil {
		return err
	}
	avg, _ := typing.Average(samples)

	plain := passkey.Generate()
	hash, err := passkey.Hash(plain)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing passkey: %w", err))
	}

	email := sess.RegistrationEmail
	for _, update := range []users.FieldUpdate{
		users.SetTypingSamples(samples),
		users.SetTypingAverage(avg),
		users.SetSecretPasskey(hash),
	} {
		if err := s.users.Update(ctx, email, update); err != nil {
			return err
		}
	}

	sess.PasskeyToShow = plain
	sess.RegistrationStep = TypingCalibrated
	return s.save(ctx, sess)
}

// CompleteRegistration reveals the passkey exactly once and ends the
// registration flow.
func (s *authService) CompleteRegistration(ctx context.Context, sess *FlowSession) (*Revealed, error) {
	if sess.PasskeyToShow == "" {
		return nil, apperror.NewPrecondition("no registration is waiting to be completed").WithNext("/api/v1/register")
	}
	if err := requireRegistration(sess, TypingCalibrated); err != nil {
		return nil, err
	}

	revealed := &Revealed{Email: sess.RegistrationEmail, Passkey: sess.PasskeyToShow}
	sess.PasskeyToShow = ""
	sess.RegistrationEmail = ""
	sess.RegistrationStep = RegistrationComplete
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("registration completed", slog.String("email", revealed.Email))
	return revealed, nil
}

// --- Login ---

// StartLogin begins a fresh login attempt for a known email, resetting the
// failure counter.
func (s *authService) StartLogin(ctx context.Context, sess *FlowSession, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperror.NewValidation("email is required")
	}

	if _, err := s.users.Get(ctx, email); err != nil {
		if apperror.Is(err, apperror.TypeNotFound) {
			return apperror.NewNotFound("no account found for this email").WithNext("/api/v1/register")
		}
		return err
	}

	sess.LoginEmail = email
	sess.LoginStep = EmailSubmitted
	sess.LoginFailures = 0
	sess.StepUpStartedAt = nil
	s.takeChallenge(sess, purposeLogin)

	slog.Debug("login started", slog.String("email", email))
	return s.save(ctx, sess)
}

// BeginBiometricLogin issues an authentication challenge. Accounts without a
// credential skip straight to the click fallback.
func (s *authService) BeginBiometricLogin(ctx context.Context, sess *FlowSession) (*BiometricResult, error) {
	if err := requireLogin(sess, EmailSubmitted, BiometricAttempt, ClickFallback); err != nil {
		return nil, err
	}
	if sess.LoginStep == ClickFallback {
		return &BiometricResult{Fallback: true}, nil
	}
	if pc := s.pendingChallenge(sess, purposeLogin); pc != nil {
		return &BiometricResult{Challenge: &pc.Challenge}, nil
	}

	user, err := s.users.Get(ctx, sess.LoginEmail)
	if err != nil {
		return nil, err
	}

	var challenge *biometric.Challenge
	if user.HasCredential() {
		challenge, err = s.ceremony.IssueAuthenticationChallenge(ctx, user)
		if err != nil && !errors.Is(err, biometric.ErrNoCredential) {
			return nil, apperror.NewInternal(fmt.Errorf("issuing authentication challenge: %w", err))
		}
	}

	if challenge == nil {
		sess.LoginStep = ClickFallback
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return &BiometricResult{Fallback: true}, nil
	}

	sess.PendingChallenge = &PendingChallenge{Purpose: purposeLogin, Challenge: *challenge}
	sess.LoginStep = BiometricAttempt
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &BiometricResult{Challenge: challenge}, nil
}

// FinishBiometricLogin verifies the assertion. Any verification failure,
// including a timed out ceremony, moves the login to the click fallback. A
// clone warning is reported but does not block the login.
func (s *authService) FinishBiometricLogin(ctx context.Context, sess *FlowSession, response []byte) (*BiometricResult, error) {
	if err := requireLogin(sess, BiometricAttempt); err != nil {
		return nil, err
	}

	pending := s.takeChallenge(sess, purposeLogin)
	user, err := s.users.Get(ctx, sess.LoginEmail)
	if err != nil {
		return nil, err
	}

	if pending != nil {
		var assertion *biometric.Assertion
		assertion, err = s.ceremony.VerifyAuthentication(ctx, user, &pending.Challenge, response)
		if err == nil {
			if assertion.CloneWarning {
				slog.Warn("authenticator signature counter did not advance",
					slog.String("email", user.Email),
					slog.Uint64("sign_count", uint64(assertion.SignCount)),
				)
			}
			if err := s.authenticate(ctx, sess, user.Email); err != nil {
				return nil, err
			}
			return &BiometricResult{Authenticated: true, CloneWarning: assertion.CloneWarning}, nil
		}
	}

	slog.Info("biometric login failed, falling back to clicks",
		slog.String("email", sess.LoginEmail),
		slog.Any("error", err),
	)
	sess.LoginStep = ClickFallback
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &BiometricResult{Fallback: true}, nil
}

// VerifyClicks matches the submitted clicks against the stored pattern. A
// mismatch counts as a failure and moves the login to step-up.
func (s *authService) VerifyClicks(ctx context.Context, sess *FlowSession, points []users.Point) (*ClickResult, error) {
	if err := requireLogin(sess, ClickFallback); err != nil {
		return nil, err
	}
	if err := clicks.Validate(points); err != nil {
		return nil, err
	}

	baseline, err := s.users.ClickProfile(ctx, sess.LoginEmail)
	if err != nil {
		return nil, err
	}

	missed := clicks.Check(baseline, points)
	if missed == -1 {
		if err := s.authenticate(ctx, sess, sess.LoginEmail); err != nil {
			return nil, err
		}
		return &ClickResult{Authenticated: true, MissedPoint: -1}, nil
	}

	sess.LoginFailures++
	sess.LoginStep = StepUp
	s.startStepUpTimer(sess)
	slog.Info("click pattern rejected",
		slog.String("email", sess.LoginEmail),
		slog.Int("point", missed),
		slog.Int("failures", sess.LoginFailures),
	)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &ClickResult{MissedPoint: missed, AttemptsLeft: sess.AttemptsLeft()}, nil
}

// StepUpStatus reports how many step-up attempts remain. An exhausted
// attempt budget locks the login out on entry.
func (s *authService) StepUpStatus(ctx context.Context, sess *FlowSession) (*StepUpResult, error) {
	if sess.LoginStep == LockedOut {
		return &StepUpResult{LockedOut: true}, nil
	}
	if err := requireLogin(sess, StepUp); err != nil {
		return nil, err
	}
	if sess.LoginFailures >= MaxStepUpFailures {
		return s.lockOut(ctx, sess)
	}
	return &StepUpResult{AttemptsLeft: sess.AttemptsLeft()}, nil
}

// SubmitStepUp checks the recovery passkey and the typing duration against
// the proportional band. Both must pass. The lockout check runs before any
// verification, and the attempt is charged before the factors are checked.
// A non-positive duration falls back to the time elapsed since
// step-up began.
func (s *authService) SubmitStepUp(ctx context.Context, sess *FlowSession, req StepUpRequest) (*StepUpResult, error) {
	if sess.LoginStep == LockedOut {
		return &StepUpResult{LockedOut: true}, nil
	}
	if err := requireLogin(sess, StepUp); err != nil {
		return nil, err
	}
	if sess.LoginFailures >= MaxStepUpFailures {
		return s.lockOut(ctx, sess)
	}

	// The attempt is counted and saved before verification. A stale copy of
	// the session fails this save and is never verified.
	sess.LoginFailures++
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	email := sess.LoginEmail
	stored, err := s.users.SecretPasskey(ctx, email)
	if err != nil {
		return nil, err
	}
	passkeyOK := passkey.Verify(stored, req.Passkey)

	duration := req.Duration
	if duration <= 0 && sess.StepUpStartedAt != nil {
		duration = s.now().Sub(*sess.StepUpStartedAt).Seconds()
	}
	typingOK, err := s.analyzer.VerifyRecovery(ctx, email, duration, req.Typed)
	if err != nil {
		return nil, err
	}

	if passkeyOK && typingOK {
		if err := s.authenticate(ctx, sess, email); err != nil {
			return nil, err
		}
		return &StepUpResult{Authenticated: true}, nil
	}

	slog.Info("step-up rejected",
		slog.String("email", email),
		slog.Bool("passkey_ok", passkeyOK),
		slog.Bool("typing_ok", typingOK),
		slog.Int("failures", sess.LoginFailures),
	)
	if sess.LoginFailures >= MaxStepUpFailures {
		return s.lockOut(ctx, sess)
	}

	s.startStepUpTimer(sess)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &StepUpResult{AttemptsLeft: sess.AttemptsLeft()}, nil
}

// ProbeCadence applies the fixed tolerance band to an authenticated user.
func (s *authService) ProbeCadence(ctx context.Context, sess *FlowSession, duration float64) (bool, error) {
	if !sess.IsAuthenticated {
		return false, apperror.NewUnauthorized("authentication required")
	}
	return s.analyzer.Verify(ctx, sess.AuthenticatedEmail, duration)
}

// Logout removes the session from the store.
func (s *authService) Logout(ctx context.Context, sess *FlowSession) error {
	if err := s.sessions.Destroy(ctx, sess.Token); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// --- Transitions ---

// authenticate marks the session as signed in and moves it to a new token
// with the long-lived TTL.
func (s *authService) authenticate(ctx context.Context, sess *FlowSession, email string) error {
	now := s.now().UTC()
	sess.IsAuthenticated = true
	sess.AuthenticatedEmail = email
	sess.AuthenticatedAt = &now
	sess.LoginStep = LoginAuthenticated
	sess.LoginEmail = ""
	sess.LoginFailures = 0
	sess.StepUpStartedAt = nil
	s.takeChallenge(sess, purposeLogin)

	if err := s.sessions.Rotate(ctx, sess); err != nil {
		return sessionError(err)
	}
	slog.Info("login succeeded", slog.String("email", email))
	return nil
}

// lockOut ends the login attempt. Only a new StartLogin leaves this state.
func (s *authService) lockOut(ctx context.Context, sess *FlowSession) (*StepUpResult, error) {
	slog.Warn("login locked out",
		slog.String("email", sess.LoginEmail),
		slog.Int("failures", sess.LoginFailures),
	)
	sess.LoginStep = LockedOut
	sess.LoginEmail = ""
	sess.StepUpStartedAt = nil
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &StepUpResult{LockedOut: true}, nil
}

func (s *authService) startStepUpTimer(sess *FlowSession) {
	now := s.now().UTC()
	sess.StepUpStartedAt = &now
}

// pendingChallenge returns the live challenge for purpose, or nil.
func (s *authService) pendingChallenge(sess *FlowSession, purpose string) *PendingChallenge {
	pc := sess.PendingChallenge
	if pc == nil || pc.Purpose != purpose || pc.Expired(s.now()) {
		return nil
	}
	return pc
}

// takeChallenge removes and returns the pending challenge for purpose.
// A challenge for the other flow is left untouched.
func (s *authService) takeChallenge(sess *FlowSession, purpose string) *PendingChallenge {
	pc := sess.PendingChallenge
	if pc == nil || pc.Purpose != purpose {
		return nil
	}
	sess.PendingChallenge = nil
	return pc
}

func (s *authService) save(ctx context.Context, sess *FlowSession) error {
	if err := s.sessions.Save(ctx, sess); err != nil {
		return sessionError(err)
	}
	return nil
}

// sessionError maps a store failure to an apperror. A conflict means another
// request on the same session won; the client has to reload its state.
func sessionError(err error) error {
	if errors.Is(err, ErrSessionConflict) {
		return apperror.NewConflict("this sign-in was updated by another request, please retry")
	}
	return apperror.NewInternal(fmt.Errorf("saving session: %w", err))
}

// requireRegistration checks that a registration is in progress at one of
// the allowed steps.
func requireRegistration(sess *FlowSession, allowed ...RegistrationStep) error {
	if sess.RegistrationEmail == "" {
		return apperror.NewPrecondition("no registration in progress").WithNext("/api/v1/register")
	}
	if !slices.Contains(allowed, sess.RegistrationStep) {
		return apperror.NewPrecondition("this registration step is not available now").
			WithNext(registrationNext(sess.RegistrationStep))
	}
	return nil
}

// requireLogin checks that a login is in progress at one of the allowed steps.
func requireLogin(sess *FlowSession, allowed ...LoginStep) error {
	if sess.LoginEmail == "" {
		return apperror.NewPrecondition("no login in progress").WithNext("/api/v1/login")
	}
	if !slices.Contains(allowed, sess.LoginStep) {
		return apperror.NewPrecondition("this login step is not available now").
			WithNext(loginNext(sess.LoginStep))
	}
	return nil
}

// registrationNext is the endpoint that advances a registration at step.
func registrationNext(step RegistrationStep) string {
	switch step {
	case EmailCollected:
		return "/api/v1/register/biometric/options"
	case BiometricRegistered:
		return "/api/v1/register/clicks"
	case ClicksCaptured:
		return "/api/v1/register/typing"
	case TypingCalibrated:
		return "/api/v1/register/complete"
	default:
		return "/api/v1/register"
	}
}

// loginNext is the endpoint that advances a login at step.
func loginNext(step LoginStep) string {
	switch step {
	case EmailSubmitted, BiometricAttempt:
		return "/api/v1/login/biometric/options"
	case ClickFallback:
		return "/api/v1/login/clicks"
	case StepUp:
		return "/api/v1/login/step-up"
	case LoginAuthenticated:
		return "/dashboard"
	case LockedOut:
		return "/locked-out"
	default:
		return "/api/v1/login"
	}
}
