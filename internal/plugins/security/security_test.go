package security

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/config"
	"github.com/keyxmakerx/tessera/internal/database"
)

func newSQLiteRepo(t *testing.T) SecurityEventRepository {
	t.Helper()
	_, thisFile, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "db", "migrations")

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db, config.StoreSQLite, root); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSecurityEventRepository(db)
}

// mockRepo implements SecurityEventRepository for testing.
type mockRepo struct {
	logFn         func(ctx context.Context, event *SecurityEvent) error
	listByEmailFn func(ctx context.Context, email string, limit int) ([]SecurityEvent, error)
}

func (m *mockRepo) Log(ctx context.Context, event *SecurityEvent) error {
	if m.logFn != nil {
		return m.logFn(ctx, event)
	}
	return nil
}

func (m *mockRepo) ListByEmail(ctx context.Context, email string, limit int) ([]SecurityEvent, error) {
	if m.listByEmailFn != nil {
		return m.listByEmailFn(ctx, email, limit)
	}
	return nil, nil
}

func exerciseRepository(t *testing.T, repo SecurityEventRepository) {
	t.Helper()
	svc := NewSecurityService(repo)
	ctx := context.Background()

	must := func(eventType, email string, details map[string]any) {
		if err := svc.LogEvent(ctx, eventType, email, "10.0.0.1", "test-agent", details); err != nil {
			t.Fatalf("log %s: %v", eventType, err)
		}
	}
	must(EventRegistrationStarted, "alice@example.com", nil)
	must(EventClickFailed, "alice@example.com", map[string]any{"point": float64(2)})
	must(EventStepUpSuccess, "alice@example.com", nil)
	must(EventLogout, "bob@example.com", nil)

	events, err := svc.RecentEvents(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for alice, got %d", len(events))
	}
	if events[0].EventType != EventStepUpSuccess {
		t.Errorf("expected newest first, got %s", events[0].EventType)
	}
	if events[1].Details["point"] != float64(2) {
		t.Errorf("expected details to round trip, got %v", events[1].Details)
	}
	if events[2].IPAddress != "10.0.0.1" || events[2].UserAgent != "test-agent" {
		t.Errorf("unexpected request metadata: %+v", events[2])
	}
}

func TestSQLRepository_LogAndList(t *testing.T) {
	exerciseRepository(t, newSQLiteRepo(t))
}

func TestMemoryRepository_LogAndList(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_RespectsLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_ = repo.Log(ctx, &SecurityEvent{EventType: EventClickFailed, Email: "alice@example.com"})
	}
	events, _ := repo.ListByEmail(ctx, "alice@example.com", recentLimit)
	if len(events) != recentLimit {
		t.Errorf("expected %d events, got %d", recentLimit, len(events))
	}
}

func TestLogEvent_RequiresType(t *testing.T) {
	svc := NewSecurityService(&mockRepo{})
	err := svc.LogEvent(context.Background(), "", "alice@example.com", "", "", nil)
	if !apperror.Is(err, apperror.TypeBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestLogEvent_StoreFailure(t *testing.T) {
	svc := NewSecurityService(&mockRepo{
		logFn: func(ctx context.Context, event *SecurityEvent) error {
			return errors.New("db down")
		},
	})
	err := svc.LogEvent(context.Background(), EventLogout, "alice@example.com", "", "", nil)
	if !apperror.Is(err, apperror.TypeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestLogEvent_SanitizesClientText(t *testing.T) {
	var stored *SecurityEvent
	svc := NewSecurityService(&mockRepo{
		logFn: func(ctx context.Context, event *SecurityEvent) error {
			stored = event
			return nil
		},
	})

	err := svc.LogEvent(context.Background(), EventBiometricFailed, "alice@example.com", "10.0.0.1",
		`<img src=x onerror=alert(1)>Safari`, map[string]any{"reason": "<b>bad</b>"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if stored.UserAgent != "Safari" {
		t.Errorf("user agent = %q", stored.UserAgent)
	}
	if stored.Details["reason"] != "bad" {
		t.Errorf("details = %v", stored.Details)
	}
}

func TestEventTypeLabel(t *testing.T) {
	if got := EventTypeLabel(EventLockedOut); got != "Locked Out" {
		t.Errorf("label = %q", got)
	}
	if got := EventTypeLabel("custom.thing"); got != "custom.thing" {
		t.Errorf("unknown types fall back to the raw name, got %q", got)
	}
}
