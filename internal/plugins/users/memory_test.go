package users

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

func TestMemoryRepository_CreateTwiceConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := repo.Create(ctx, "alice@example.com"); !apperror.Is(err, apperror.TypeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryRepository_InstancesAreIsolated(t *testing.T) {
	a, b := NewMemoryRepository(), NewMemoryRepository()
	ctx := context.Background()

	if _, err := a.Create(ctx, "alice@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Get(ctx, "alice@example.com"); !apperror.Is(err, apperror.TypeNotFound) {
		t.Fatalf("expected second instance to be empty, got %v", err)
	}
}

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, _ = repo.Create(ctx, "alice@example.com")
	_ = repo.Update(ctx, "alice@example.com", SetClickProfile([]Point{{1, 1}, {2, 2}, {3, 3}}))

	rec, _ := repo.Get(ctx, "alice@example.com")
	rec.ClickProfile[0] = Point{X: 999, Y: 999}

	again, _ := repo.Get(ctx, "alice@example.com")
	if again.ClickProfile[0] != (Point{X: 1, Y: 1}) {
		t.Errorf("stored record was mutated through a returned copy: %v", again.ClickProfile)
	}
}

func TestMemoryRepository_UpdateMissing(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Update(context.Background(), "ghost@example.com", SetSecretPasskey("x"))
	if !apperror.Is(err, apperror.TypeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentFieldWrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	email := "alice@example.com"
	_, _ = repo.Create(ctx, email)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = repo.Update(ctx, email, SetSecretPasskey(fmt.Sprintf("hash-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = repo.Update(ctx, email, SetTypingAverage(float64(i)))
		}(i)
	}
	wg.Wait()

	rec, err := repo.Get(ctx, email)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SecretPasskey == "" || rec.TypingAverage == nil {
		t.Errorf("expected both fields written, got passkey=%q avg=%v", rec.SecretPasskey, rec.TypingAverage)
	}
}

func TestFieldUpdate_RejectsNonFiniteAverage(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, _ = repo.Create(ctx, "alice@example.com")

	var zero float64
	err := repo.Update(ctx, "alice@example.com", SetTypingAverage(zero/zero))
	if !apperror.Is(err, apperror.TypeValidation) {
		t.Fatalf("expected validation error for NaN, got %v", err)
	}
}
