// Package users owns the credential record kept for every identity: the
// biometric credential, the ordered click profile, the recovery passkey hash
// and the typing calibration. Records are keyed by email exactly as stored
// (case-sensitive) and are never deleted.
//
// This is a CORE plugin. The auth state machine is its only writer.
package users

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// ClickPoints is the number of points in a saved click profile.
const ClickPoints = 3

// Point is one click on the shared login image, in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UserRecord is the persisted credential record for one identity. Slices are
// never nil on a record returned by a repository.
type UserRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	// BiometricCredential is the opaque credential produced by the
	// registration ceremony. Nil until one is registered.
	BiometricCredential []byte `json:"-"`

	// ClickProfile is ordered: point i is only ever compared to point i.
	ClickProfile []Point `json:"-"`

	// SecretPasskey is the argon2id hash of the normalized recovery passkey.
	SecretPasskey string `json:"-"`

	TypingSamples []float64 `json:"typing_samples"`

	// TypingAverage is derived from TypingSamples once, at calibration.
	TypingAverage *float64 `json:"typing_average,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCredential reports whether a biometric credential is on file.
func (r *UserRecord) HasCredential() bool {
	return len(r.BiometricCredential) > 0
}

// clone returns a deep copy so callers cannot mutate a stored record.
func (r *UserRecord) clone() *UserRecord {
	cp := *r
	if r.BiometricCredential != nil {
		cp.BiometricCredential = append([]byte(nil), r.BiometricCredential...)
	}
	cp.ClickProfile = append([]Point{}, r.ClickProfile...)
	cp.TypingSamples = append([]float64{}, r.TypingSamples...)
	if r.TypingAverage != nil {
		avg := *r.TypingAverage
		cp.TypingAverage = &avg
	}
	return &cp
}

// --- Field updates ---

// Field names one updatable column of a UserRecord.
type Field int

// Updatable fields. Email, ID and timestamps are not updatable.
const (
	FieldBiometricCredential Field = iota + 1
	FieldClickProfile
	FieldSecretPasskey
	FieldTypingSamples
	FieldTypingAverage
)

// String returns the column name backing the field.
func (f Field) String() string {
	switch f {
	case FieldBiometricCredential:
		return "biometric_credential"
	case FieldClickProfile:
		return "click_profile"
	case FieldSecretPasskey:
		return "secret_passkey"
	case FieldTypingSamples:
		return "typing_samples"
	case FieldTypingAverage:
		return "typing_average"
	default:
		return "unknown"
	}
}

// FieldUpdate is a single-field change to a record. Values are built only by
// the Set* constructors, so every update names a real field with a value of
// the right type.
type FieldUpdate struct {
	field      Field
	credential []byte
	clicks     []Point
	passkey    string
	samples    []float64
	average    *float64
}

// SetBiometricCredential replaces the stored biometric credential.
func SetBiometricCredential(credential []byte) FieldUpdate {
	return FieldUpdate{field: FieldBiometricCredential, credential: append([]byte(nil), credential...)}
}

// SetClickProfile replaces the click profile. Only exactly three points (or
// an empty profile) are accepted when the update is applied.
func SetClickProfile(points []Point) FieldUpdate {
	return FieldUpdate{field: FieldClickProfile, clicks: append([]Point{}, points...)}
}

// SetSecretPasskey stores the hashed recovery passkey.
func SetSecretPasskey(hash string) FieldUpdate {
	return FieldUpdate{field: FieldSecretPasskey, passkey: hash}
}

// SetTypingSamples replaces the calibration samples.
func SetTypingSamples(samples []float64) FieldUpdate {
	return FieldUpdate{field: FieldTypingSamples, samples: append([]float64{}, samples...)}
}

// SetTypingAverage stores the derived calibration average.
func SetTypingAverage(avg float64) FieldUpdate {
	return FieldUpdate{field: FieldTypingAverage, average: &avg}
}

// Field returns the field this update targets.
func (u FieldUpdate) Field() Field {
	return u.field
}

// validate rejects updates that would persist a malformed record.
func (u FieldUpdate) validate() error {
	switch u.field {
	case FieldClickProfile:
		if n := len(u.clicks); n != 0 && n != ClickPoints {
			return apperror.NewValidation(fmt.Sprintf("click profile needs exactly %d points, got %d", ClickPoints, n))
		}
	case FieldTypingAverage:
		if u.average == nil || math.IsNaN(*u.average) || math.IsInf(*u.average, 0) {
			return apperror.NewValidation("typing average must be a finite number")
		}
	case FieldBiometricCredential, FieldSecretPasskey, FieldTypingSamples:
	default:
		return apperror.NewValidation("unknown record field")
	}
	return nil
}

// apply writes the update onto an in-memory record.
func (u FieldUpdate) apply(rec *UserRecord) {
	switch u.field {
	case FieldBiometricCredential:
		rec.BiometricCredential = u.credential
	case FieldClickProfile:
		rec.ClickProfile = u.clicks
	case FieldSecretPasskey:
		rec.SecretPasskey = u.passkey
	case FieldTypingSamples:
		rec.TypingSamples = u.samples
	case FieldTypingAverage:
		avg := *u.average
		rec.TypingAverage = &avg
	}
}

// sqlValue returns the value bound to the field's column. JSON columns are
// bound as strings so MariaDB and SQLite store the same text.
func (u FieldUpdate) sqlValue() (any, error) {
	switch u.field {
	case FieldBiometricCredential:
		if len(u.credential) == 0 {
			return nil, nil
		}
		return string(u.credential), nil
	case FieldClickProfile:
		return marshalJSON(u.clicks)
	case FieldSecretPasskey:
		if u.passkey == "" {
			return nil, nil
		}
		return u.passkey, nil
	case FieldTypingSamples:
		return marshalJSON(u.samples)
	case FieldTypingAverage:
		return *u.average, nil
	default:
		return nil, fmt.Errorf("no column for field %d", u.field)
	}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %T: %w", v, err)
	}
	return string(b), nil
}
