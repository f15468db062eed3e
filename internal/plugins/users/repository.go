package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/database"
)

// UserRepository defines the data access contract for credential records.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	// Get returns the record for email, or apperror.NotFound.
	Get(ctx context.Context, email string) (*UserRecord, error)

	// Create inserts an empty record, or returns apperror.Conflict when the
	// email already has one.
	Create(ctx context.Context, email string) (*UserRecord, error)

	// Update applies a single-field change, or returns apperror.NotFound.
	Update(ctx context.Context, email string, update FieldUpdate) error
}

// userRepository implements UserRepository with hand-written SQL that runs
// unchanged on MariaDB and SQLite.
type userRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db, now: time.Now}
}

// Get retrieves a record by email. The comparison is case-sensitive.
func (r *userRepository) Get(ctx context.Context, email string) (*UserRecord, error) {
	query := `SELECT id, email, biometric_credential, click_profile, secret_passkey,
	                 typing_samples, typing_average, created_at, updated_at
	          FROM user_records WHERE email = ?`

	var (
		rec        UserRecord
		credential sql.NullString
		clicks     string
		passkey    sql.NullString
		samples    string
		average    sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&rec.ID,
		&rec.Email,
		&credential,
		&clicks,
		&passkey,
		&samples,
		&average,
		database.ScanTime(&rec.CreatedAt),
		database.ScanTime(&rec.UpdatedAt),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("no account found for this email")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user record: %w", err)
	}

	if credential.Valid && credential.String != "" {
		rec.BiometricCredential = []byte(credential.String)
	}
	if err := json.Unmarshal([]byte(clicks), &rec.ClickProfile); err != nil {
		return nil, fmt.Errorf("decoding click profile: %w", err)
	}
	if err := json.Unmarshal([]byte(samples), &rec.TypingSamples); err != nil {
		return nil, fmt.Errorf("decoding typing samples: %w", err)
	}
	if rec.ClickProfile == nil {
		rec.ClickProfile = []Point{}
	}
	if rec.TypingSamples == nil {
		rec.TypingSamples = []float64{}
	}
	rec.SecretPasskey = passkey.String
	if average.Valid {
		avg := average.Float64
		rec.TypingAverage = &avg
	}

	return &rec, nil
}

// Create inserts an empty record. Uniqueness is enforced by the unique index
// on email; a failed insert is reported as a conflict only when the email is
// actually taken, so other driver errors are not masked.
func (r *userRepository) Create(ctx context.Context, email string) (*UserRecord, error) {
	now := database.Timestamp(r.now())
	rec := &UserRecord{
		ID:            uuid.NewString(),
		Email:         email,
		ClickProfile:  []Point{},
		TypingSamples: []float64{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `INSERT INTO user_records (id, email, click_profile, typing_samples, created_at, updated_at)
	          VALUES (?, ?, '[]', '[]', ?, ?)`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Email, now, now)
	if err != nil {
		exists, existsErr := r.emailExists(ctx, email)
		if existsErr == nil && exists {
			return nil, apperror.NewConflict("an account with this email already exists")
		}
		return nil, fmt.Errorf("inserting user record: %w", err)
	}

	return rec, nil
}

// Update writes one column in a single statement, which is atomic per row on
// both drivers.
func (r *userRepository) Update(ctx context.Context, email string, update FieldUpdate) error {
	if err := update.validate(); err != nil {
		return err
	}
	value, err := update.sqlValue()
	if err != nil {
		return err
	}

	// The column name comes from the closed Field enum, never from input.
	query := fmt.Sprintf(`UPDATE user_records SET %s = ?, updated_at = ? WHERE email = ?`, update.Field())

	result, err := r.db.ExecContext(ctx, query, value, database.Timestamp(r.now()), email)
	if err != nil {
		return fmt.Errorf("updating %s: %w", update.Field(), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("no account found for this email")
	}

	return nil
}

// emailExists returns true if a record with the given email already exists.
func (r *userRepository) emailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT COUNT(*) FROM user_records WHERE email = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&count); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return count > 0, nil
}
