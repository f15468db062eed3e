package users

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"runtime"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/config"
	"github.com/keyxmakerx/tessera/internal/database"
)

// newSQLiteRepo opens a migrated SQLite file in a temp dir.
func newSQLiteRepo(t *testing.T) UserRepository {
	t.Helper()
	_, thisFile, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "db", "migrations")

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db, config.StoreSQLite, root); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewUserRepository(db)
}

func newRepoWithMock(t *testing.T) (UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

// --- SQLite round trips ---

func TestSQLRepository_CreateThenGet(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected id %s, got %s", created.ID, got.ID)
	}
	if got.ClickProfile == nil || len(got.ClickProfile) != 0 {
		t.Errorf("expected empty click profile, got %v", got.ClickProfile)
	}
	if got.TypingSamples == nil || len(got.TypingSamples) != 0 {
		t.Errorf("expected empty typing samples, got %v", got.TypingSamples)
	}
	if got.HasCredential() || got.SecretPasskey != "" || got.TypingAverage != nil {
		t.Errorf("expected optional fields unset, got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be scanned")
	}
}

func TestSQLRepository_CreateTwiceConflicts(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := repo.Create(ctx, "alice@example.com")
	if !apperror.Is(err, apperror.TypeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSQLRepository_EmailIsCaseSensitive(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "alice@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Get(ctx, "Alice@example.com"); !apperror.Is(err, apperror.TypeNotFound) {
		t.Fatalf("expected not found for different case, got %v", err)
	}
}

func TestSQLRepository_UpdateEveryField(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	email := "alice@example.com"

	if _, err := repo.Create(ctx, email); err != nil {
		t.Fatalf("create: %v", err)
	}

	clicks := []Point{{278, 45}, {61, 212}, {501, 210}}
	updates := []FieldUpdate{
		SetBiometricCredential([]byte(`{"id":"abc"}`)),
		SetClickProfile(clicks),
		SetSecretPasskey("$argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"),
		SetTypingSamples([]float64{5.0, 5.2, 4.8, 5.0}),
		SetTypingAverage(5.0),
	}
	for _, u := range updates {
		if err := repo.Update(ctx, email, u); err != nil {
			t.Fatalf("update %s: %v", u.Field(), err)
		}
	}

	got, err := repo.Get(ctx, email)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.BiometricCredential) != `{"id":"abc"}` {
		t.Errorf("credential = %s", got.BiometricCredential)
	}
	if len(got.ClickProfile) != 3 || got.ClickProfile[0] != clicks[0] || got.ClickProfile[2] != clicks[2] {
		t.Errorf("click profile = %v, want %v in order", got.ClickProfile, clicks)
	}
	if got.SecretPasskey == "" {
		t.Error("expected passkey hash to be stored")
	}
	if len(got.TypingSamples) != 4 {
		t.Errorf("typing samples = %v", got.TypingSamples)
	}
	if got.TypingAverage == nil || *got.TypingAverage != 5.0 {
		t.Errorf("typing average = %v, want 5.0", got.TypingAverage)
	}
}

func TestSQLRepository_UpdateMissingRecord(t *testing.T) {
	repo := newSQLiteRepo(t)
	err := repo.Update(context.Background(), "nobody@example.com", SetTypingAverage(5))
	if !apperror.Is(err, apperror.TypeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLRepository_RejectsPartialClickProfile(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	if _, err := repo.Create(ctx, "alice@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Update(ctx, "alice@example.com", SetClickProfile([]Point{{1, 1}, {2, 2}}))
	if !apperror.Is(err, apperror.TypeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, _ := repo.Get(ctx, "alice@example.com")
	if len(got.ClickProfile) != 0 {
		t.Errorf("partial profile must not be persisted, got %v", got.ClickProfile)
	}
}

// --- Driver failure paths ---

func TestSQLRepository_CreateDriverErrorIsNotConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_records")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_records")).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := repo.Create(context.Background(), "alice@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.Is(err, apperror.TypeConflict) {
		t.Fatal("driver failure must not be reported as a conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLRepository_GetQueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("SELECT id, email").
		WithArgs("alice@example.com").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.Get(context.Background(), "alice@example.com")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestSQLRepository_UpdateTargetsSingleColumn(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_records SET typing_average = ?, updated_at = ? WHERE email = ?")).
		WithArgs(5.0, sqlmock.AnyArg(), "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), "alice@example.com", SetTypingAverage(5.0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
