package auth

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/middleware"
	"github.com/keyxmakerx/tessera/internal/plugins/biometric"
	"github.com/keyxmakerx/tessera/internal/plugins/security"
	"github.com/keyxmakerx/tessera/internal/templates/pages"
)

// sessionCookieName is the HTTP cookie carrying the session token.
const sessionCookieName = "tessera_session"

// maxCeremonyBody caps the size of a WebAuthn response body.
const maxCeremonyBody = 64 << 10

// Handler exposes the auth state machine over HTTP. Handlers bind input,
// call the service, record a security event and shape the JSON reply.
type Handler struct {
	service    AuthService
	security   security.SecurityService
	sessionTTL time.Duration
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, securitySvc security.SecurityService, sessionTTL time.Duration) *Handler {
	return &Handler{service: service, security: securitySvc, sessionTTL: sessionTTL}
}

// --- Registration ---

// Register collects the email (POST /api/v1/register).
func (h *Handler) Register(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.StartRegistration(c.Request().Context(), sess, req.Email); err != nil {
		return err
	}
	h.logEvent(c, security.EventRegistrationStarted, sess.RegistrationEmail, nil)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"step":    sess.RegistrationStep,
		"next":    registrationNext(sess.RegistrationStep),
	})
}

// RegisterBiometricOptions issues the credential creation options
// (GET /api/v1/register/biometric/options).
func (h *Handler) RegisterBiometricOptions(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	challenge, err := h.service.BeginBiometricRegistration(c.Request().Context(), sess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, challengeResponse(challenge))
}

// RegisterBiometric verifies the authenticator's attestation
// (POST /api/v1/register/biometric).
func (h *Handler) RegisterBiometric(c echo.Context) error {
	body, err := readCeremonyBody(c)
	if err != nil {
		return err
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.FinishBiometricRegistration(c.Request().Context(), sess, body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"step":    sess.RegistrationStep,
		"next":    registrationNext(sess.RegistrationStep),
	})
}

// RegisterClicks saves the click pattern (POST /api/v1/register/clicks).
func (h *Handler) RegisterClicks(c echo.Context) error {
	var req ClicksRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.SaveClickProfile(c.Request().Context(), sess, req.Points); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"step":    sess.RegistrationStep,
		"next":    registrationNext(sess.RegistrationStep),
	})
}

// RegisterTyping saves the typing calibration (POST /api/v1/register/typing).
func (h *Handler) RegisterTyping(c echo.Context) error {
	var req TypingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.SaveTypingBaseline(c.Request().Context(), sess, req.Samples); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"step":    sess.RegistrationStep,
		"next":    registrationNext(sess.RegistrationStep),
	})
}

// RegisterComplete reveals the recovery passkey once
// (GET /api/v1/register/complete).
func (h *Handler) RegisterComplete(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	revealed, err := h.service.CompleteRegistration(c.Request().Context(), sess)
	if err != nil {
		return err
	}
	h.logEvent(c, security.EventRegistrationCompleted, revealed.Email, nil)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"email":   revealed.Email,
		"passkey": revealed.Passkey,
		"next":    "/",
	})
}

// --- Login ---

// Login collects the email (POST /api/v1/login).
func (h *Handler) Login(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.StartLogin(c.Request().Context(), sess, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"step":    sess.LoginStep,
		"next":    loginNext(sess.LoginStep),
	})
}

// LoginBiometricOptions issues an assertion challenge, or tells the client
// to use the click fallback (GET /api/v1/login/biometric/options).
func (h *Handler) LoginBiometricOptions(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	result, err := h.service.BeginBiometricLogin(c.Request().Context(), sess)
	if err != nil {
		return err
	}

	if result.Fallback {
		return c.JSON(http.StatusOK, map[string]any{
			"success":  true,
			"fallback": true,
			"next":     loginNext(sess.LoginStep),
		})
	}
	return c.JSON(http.StatusOK, challengeResponse(result.Challenge))
}

// LoginBiometric verifies the assertion (POST /api/v1/login/biometric).
func (h *Handler) LoginBiometric(c echo.Context) error {
	body, err := readCeremonyBody(c)
	if err != nil {
		return err
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	email := sess.LoginEmail
	result, err := h.service.FinishBiometricLogin(c.Request().Context(), sess, body)
	if err != nil {
		return err
	}

	if result.Authenticated {
		if result.CloneWarning {
			h.logEvent(c, security.EventBiometricCloneWarning, email, nil)
		}
		h.logEvent(c, security.EventBiometricSuccess, email, nil)
		return h.signedIn(c, sess)
	}

	h.logEvent(c, security.EventBiometricFailed, email, nil)
	return c.JSON(http.StatusOK, map[string]any{
		"success":  false,
		"fallback": true,
		"message":  "Fingerprint not recognised. Click your three points instead.",
		"next":     loginNext(sess.LoginStep),
	})
}

// LoginClicks checks the click fallback (POST /api/v1/login/clicks).
func (h *Handler) LoginClicks(c echo.Context) error {
	var req ClicksRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	email := sess.LoginEmail
	result, err := h.service.VerifyClicks(c.Request().Context(), sess, req.Points)
	if err != nil {
		return err
	}

	if result.Authenticated {
		h.logEvent(c, security.EventClickSuccess, email, nil)
		return h.signedIn(c, sess)
	}

	h.logEvent(c, security.EventClickFailed, email, map[string]any{"point": result.MissedPoint})
	return c.JSON(http.StatusOK, map[string]any{
		"success":       false,
		"message":       "Those clicks did not match. Confirm it is you with your passkey.",
		"attempts_left": result.AttemptsLeft,
		"next":          loginNext(sess.LoginStep),
	})
}

// StepUpStatus reports the remaining step-up attempts
// (GET /api/v1/login/step-up).
func (h *Handler) StepUpStatus(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	email := sess.LoginEmail
	result, err := h.service.StepUpStatus(c.Request().Context(), sess)
	if err != nil {
		return err
	}
	if result.LockedOut {
		return h.lockedOut(c, email, false)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"attempts_left": result.AttemptsLeft,
	})
}

// StepUp checks the recovery passkey and typing duration
// (POST /api/v1/login/step-up).
func (h *Handler) StepUp(c echo.Context) error {
	var req StepUpRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	email := sess.LoginEmail
	failuresBefore := sess.LoginFailures

	result, err := h.service.SubmitStepUp(c.Request().Context(), sess, req)
	if err != nil {
		return err
	}

	switch {
	case result.Authenticated:
		h.logEvent(c, security.EventStepUpSuccess, email, nil)
		return h.signedIn(c, sess)
	case result.LockedOut:
		return h.lockedOut(c, email, sess.LoginFailures > failuresBefore)
	}

	h.logEvent(c, security.EventStepUpFailed, email, nil)
	return c.JSON(http.StatusOK, map[string]any{
		"success":       false,
		"message":       "Passkey or typing rhythm did not match.",
		"attempts_left": result.AttemptsLeft,
	})
}

// --- Signed-in ---

// Me returns the signed-in user and their recent activity (GET /api/v1/me).
func (h *Handler) Me(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	events, err := h.security.RecentEvents(c.Request().Context(), sess.AuthenticatedEmail)
	if err != nil {
		return err
	}
	if events == nil {
		events = []security.SecurityEvent{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":          true,
		"email":            sess.AuthenticatedEmail,
		"authenticated_at": sess.AuthenticatedAt,
		"recent_events":    events,
	})
}

// Cadence checks a typing duration against the fixed band
// (POST /api/v1/me/cadence).
func (h *Handler) Cadence(c echo.Context) error {
	var req CadenceRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	ok, err := h.service.ProbeCadence(c.Request().Context(), sess, req.Duration)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"within_band": ok,
	})
}

// Dashboard renders the signed-in landing page (GET /dashboard).
func (h *Handler) Dashboard(c echo.Context) error {
	email := GetEmail(c)
	events, err := h.security.RecentEvents(c.Request().Context(), email)
	if err != nil {
		return err
	}

	activity := make([]pages.Activity, 0, len(events))
	for _, e := range events {
		activity = append(activity, pages.Activity{Label: e.Label(), IPAddress: e.IPAddress, At: e.CreatedAt})
	}
	return middleware.Render(c, http.StatusOK, pages.Dashboard(email, activity))
}

// LockedOutPage renders the lockout notice (GET /locked-out).
func (h *Handler) LockedOutPage(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, pages.LockedOut())
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	sess := GetFlow(c)
	if sess == nil {
		return apperror.NewMissingContext()
	}
	if sess.IsAuthenticated {
		h.logEvent(c, security.EventLogout, sess.AuthenticatedEmail, nil)
	}

	// The cookie is cleared even if Redis is unreachable.
	_ = h.service.Logout(c.Request().Context(), sess)
	clearSessionCookie(c)

	return c.Redirect(http.StatusSeeOther, "/")
}

// --- Helpers ---

// signedIn sets the rotated session cookie and points the client at the
// dashboard.
func (h *Handler) signedIn(c echo.Context, sess *FlowSession) error {
	setSessionCookie(c, sess.Token, h.sessionTTL)
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"authenticated": true,
		"next":          "/dashboard",
	})
}

// lockedOut records the lockout and answers 423. A step-up attempt that
// caused the lockout is logged as a failure first.
func (h *Handler) lockedOut(c echo.Context, email string, attemptFailed bool) error {
	if attemptFailed {
		h.logEvent(c, security.EventStepUpFailed, email, nil)
	}
	if email != "" {
		h.logEvent(c, security.EventLockedOut, email, nil)
	}
	return apperror.NewLocked("too many failed attempts, start the login again").WithNext("/locked-out")
}

// logEvent records a security event. Failures are logged by the service
// and never block the response.
func (h *Handler) logEvent(c echo.Context, eventType, email string, details map[string]any) {
	_ = h.security.LogEvent(c.Request().Context(), eventType, email,
		c.RealIP(), c.Request().UserAgent(), details)
}

// challengeResponse is the JSON reply carrying ceremony options.
func challengeResponse(challenge *biometric.Challenge) map[string]any {
	return map[string]any{
		"success":    true,
		"options":    challenge.Options,
		"expires_at": challenge.ExpiresAt,
	}
}

// readCeremonyBody reads the raw WebAuthn response JSON.
func readCeremonyBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxCeremonyBody))
	if err != nil {
		return nil, apperror.NewBadRequest("invalid request")
	}
	if len(body) == 0 {
		return nil, apperror.NewValidation("authenticator response is required")
	}
	return body, nil
}

// --- Cookie helpers ---

// getSessionToken reads the session token from the cookie.
func getSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie. A zero maxAge makes it a
// browser-session cookie, used before the user has signed in.
func setSessionCookie(c echo.Context, token string, maxAge time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   middleware.IsSecure(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
