package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/sanitize"
)

// recentLimit is the number of events shown as recent activity.
const recentLimit = 10

// SecurityService records and lists authentication events.
type SecurityService interface {
	// LogEvent records a security event. Fire-and-forget friendly: callers
	// may ignore the error, which is already logged.
	LogEvent(ctx context.Context, eventType, email, ip, userAgent string, details map[string]any) error

	// RecentEvents returns the latest events for an identity, newest first.
	RecentEvents(ctx context.Context, email string) ([]SecurityEvent, error)
}

// securityService implements SecurityService.
type securityService struct {
	repo SecurityEventRepository
}

// NewSecurityService creates a new security service.
func NewSecurityService(repo SecurityEventRepository) SecurityService {
	return &securityService{repo: repo}
}

// LogEvent validates and persists a security event. The user agent and
// string details come from the client and are stripped of markup.
func (s *securityService) LogEvent(ctx context.Context, eventType, email, ip, userAgent string, details map[string]any) error {
	if eventType == "" {
		return apperror.NewBadRequest("event type is required")
	}

	event := &SecurityEvent{
		EventType: eventType,
		Email:     email,
		IPAddress: ip,
		UserAgent: sanitize.Text(userAgent),
		Details:   sanitize.Details(details),
	}

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", eventType),
			slog.String("email", email),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("logging security event: %w", err))
	}

	return nil
}

// RecentEvents returns up to recentLimit events for email.
func (s *securityService) RecentEvents(ctx context.Context, email string) ([]SecurityEvent, error) {
	events, err := s.repo.ListByEmail(ctx, email, recentLimit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing security events: %w", err))
	}
	return events, nil
}
