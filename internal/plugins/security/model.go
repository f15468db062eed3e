// Package security records authentication events per identity: each
// registration, factor outcome, lockout and logout. The dashboard shows a
// user their own recent activity from this log.
package security

import "time"

// Security event type constants follow the "resource.verb" pattern.
const (
	EventRegistrationStarted   = "registration.started"
	EventRegistrationCompleted = "registration.completed"
	EventBiometricSuccess      = "login.biometric_success"
	EventBiometricFailed       = "login.biometric_failed"
	EventBiometricCloneWarning = "login.biometric_clone_warning"
	EventClickSuccess          = "login.click_success"
	EventClickFailed           = "login.click_failed"
	EventStepUpSuccess         = "login.stepup_success"
	EventStepUpFailed          = "login.stepup_failed"
	EventLockedOut             = "login.locked_out"
	EventLogout                = "logout"
)

// SecurityEvent is a single recorded authentication event.
type SecurityEvent struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	Email     string         `json:"email"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Label returns a human-readable label for the event type.
func (e SecurityEvent) Label() string {
	return EventTypeLabel(e.EventType)
}

// EventTypeLabel returns a human-readable label for a security event type.
func EventTypeLabel(eventType string) string {
	labels := map[string]string{
		EventRegistrationStarted:   "Registration Started",
		EventRegistrationCompleted: "Registration Completed",
		EventBiometricSuccess:      "Fingerprint Accepted",
		EventBiometricFailed:       "Fingerprint Rejected",
		EventBiometricCloneWarning: "Authenticator Clone Warning",
		EventClickSuccess:          "Image Clicks Accepted",
		EventClickFailed:           "Image Clicks Rejected",
		EventStepUpSuccess:         "Recovery Accepted",
		EventStepUpFailed:          "Recovery Rejected",
		EventLockedOut:             "Locked Out",
		EventLogout:                "Logout",
	}
	if label, ok := labels[eventType]; ok {
		return label
	}
	return eventType
}
