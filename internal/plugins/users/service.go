package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// UserService is the record store boundary consumed by the auth state
// machine and the factor packages. Handlers never touch the repository.
type UserService interface {
	Get(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, email string) (*UserRecord, error)
	Update(ctx context.Context, email string, update FieldUpdate) error

	// Credential returns the stored biometric credential, nil if none.
	Credential(ctx context.Context, email string) ([]byte, error)

	// ClickProfile returns the ordered click profile, empty if not saved.
	ClickProfile(ctx context.Context, email string) ([]Point, error)

	// SecretPasskey returns the stored passkey hash, "" if none.
	SecretPasskey(ctx context.Context, email string) (string, error)

	// TypingBaseline returns the calibration samples and their stored
	// average. The average is nil until calibration completes.
	TypingBaseline(ctx context.Context, email string) ([]float64, *float64, error)
}

// userService implements UserService on top of a UserRepository.
type userService struct {
	repo UserRepository
}

// NewUserService creates a new user service.
func NewUserService(repo UserRepository) UserService {
	return &userService{repo: repo}
}

// Get returns the record for email. Repository apperrors pass through;
// anything else is a store failure.
func (s *userService) Get(ctx context.Context, email string) (*UserRecord, error) {
	rec, err := s.repo.Get(ctx, email)
	if err != nil {
		return nil, wrapStoreError("getting user record", err)
	}
	return rec, nil
}

// Create makes an empty record for a new identity.
func (s *userService) Create(ctx context.Context, email string) (*UserRecord, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.NewValidation("email is required")
	}

	rec, err := s.repo.Create(ctx, email)
	if err != nil {
		return nil, wrapStoreError("creating user record", err)
	}

	slog.Info("user record created",
		slog.String("user_id", rec.ID),
		slog.String("email", rec.Email),
	)
	return rec, nil
}

// Update applies one field change.
func (s *userService) Update(ctx context.Context, email string, update FieldUpdate) error {
	if err := s.repo.Update(ctx, email, update); err != nil {
		return wrapStoreError("updating "+update.Field().String(), err)
	}

	slog.Debug("user record updated",
		slog.String("email", email),
		slog.String("field", update.Field().String()),
	)
	return nil
}

// Credential returns the stored biometric credential.
func (s *userService) Credential(ctx context.Context, email string) ([]byte, error) {
	rec, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	return rec.BiometricCredential, nil
}

// ClickProfile returns the ordered click profile.
func (s *userService) ClickProfile(ctx context.Context, email string) ([]Point, error) {
	rec, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	return rec.ClickProfile, nil
}

// SecretPasskey returns the stored passkey hash.
func (s *userService) SecretPasskey(ctx context.Context, email string) (string, error) {
	rec, err := s.Get(ctx, email)
	if err != nil {
		return "", err
	}
	return rec.SecretPasskey, nil
}

// TypingBaseline returns the calibration samples and stored average.
func (s *userService) TypingBaseline(ctx context.Context, email string) ([]float64, *float64, error) {
	rec, err := s.Get(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	return rec.TypingSamples, rec.TypingAverage, nil
}

// wrapStoreError keeps domain errors intact and turns everything else into
// an internal error.
func wrapStoreError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
