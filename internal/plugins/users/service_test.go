package users

import (
	"context"
	"errors"
	"testing"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	getFn    func(ctx context.Context, email string) (*UserRecord, error)
	createFn func(ctx context.Context, email string) (*UserRecord, error)
	updateFn func(ctx context.Context, email string, update FieldUpdate) error
}

func (m *mockUserRepo) Get(ctx context.Context, email string) (*UserRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, email)
	}
	return nil, apperror.NewNotFound("no account found for this email")
}

func (m *mockUserRepo) Create(ctx context.Context, email string) (*UserRecord, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email)
	}
	return &UserRecord{ID: "id-1", Email: email, ClickProfile: []Point{}, TypingSamples: []float64{}}, nil
}

func (m *mockUserRepo) Update(ctx context.Context, email string, update FieldUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, email, update)
	}
	return nil
}

func TestCreate_EmptyEmail(t *testing.T) {
	svc := NewUserService(&mockUserRepo{
		createFn: func(ctx context.Context, email string) (*UserRecord, error) {
			t.Fatal("repository must not be called for an empty email")
			return nil, nil
		},
	})

	_, err := svc.Create(context.Background(), "   ")
	if !apperror.Is(err, apperror.TypeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGet_StoreFailureIsInternal(t *testing.T) {
	svc := NewUserService(&mockUserRepo{
		getFn: func(ctx context.Context, email string) (*UserRecord, error) {
			return nil, errors.New("connection refused")
		},
	})

	_, err := svc.Get(context.Background(), "alice@example.com")
	if !apperror.Is(err, apperror.TypeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestGet_NotFoundPassesThrough(t *testing.T) {
	svc := NewUserService(&mockUserRepo{})

	_, err := svc.Get(context.Background(), "ghost@example.com")
	if !apperror.Is(err, apperror.TypeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConvenienceReaders(t *testing.T) {
	avg := 5.0
	rec := &UserRecord{
		Email:               "alice@example.com",
		BiometricCredential: []byte("cred"),
		ClickProfile:        []Point{{1, 2}, {3, 4}, {5, 6}},
		SecretPasskey:       "hash",
		TypingSamples:       []float64{4, 6},
		TypingAverage:       &avg,
	}
	svc := NewUserService(&mockUserRepo{
		getFn: func(ctx context.Context, email string) (*UserRecord, error) {
			return rec, nil
		},
	})
	ctx := context.Background()

	cred, err := svc.Credential(ctx, rec.Email)
	if err != nil || string(cred) != "cred" {
		t.Errorf("Credential = %q, %v", cred, err)
	}
	clicks, err := svc.ClickProfile(ctx, rec.Email)
	if err != nil || len(clicks) != 3 {
		t.Errorf("ClickProfile = %v, %v", clicks, err)
	}
	hash, err := svc.SecretPasskey(ctx, rec.Email)
	if err != nil || hash != "hash" {
		t.Errorf("SecretPasskey = %q, %v", hash, err)
	}
	samples, gotAvg, err := svc.TypingBaseline(ctx, rec.Email)
	if err != nil || len(samples) != 2 || gotAvg == nil || *gotAvg != 5.0 {
		t.Errorf("TypingBaseline = %v, %v, %v", samples, gotAvg, err)
	}
}

func TestUpdate_PassesSingleField(t *testing.T) {
	var got Field
	svc := NewUserService(&mockUserRepo{
		updateFn: func(ctx context.Context, email string, update FieldUpdate) error {
			got = update.Field()
			return nil
		},
	})

	if err := svc.Update(context.Background(), "alice@example.com", SetSecretPasskey("h")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != FieldSecretPasskey {
		t.Errorf("expected %s, got %s", FieldSecretPasskey, got)
	}
}
