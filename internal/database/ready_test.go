package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/keyxmakerx/tessera/internal/config"
)

// fastRetries shrinks the startup schedule for the duration of a test.
func fastRetries(t *testing.T, attempts int) {
	t.Helper()
	oldAttempts, oldBackoff := readyAttempts, readyBackoff
	readyAttempts, readyBackoff = attempts, time.Millisecond
	t.Cleanup(func() {
		readyAttempts, readyBackoff = oldAttempts, oldBackoff
	})
}

func TestWaitReady_RetriesUntilUp(t *testing.T) {
	fastRetries(t, 5)
	calls := 0

	err := waitReady("test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 pings, got %d", calls)
	}
}

func TestWaitReady_GivesUp(t *testing.T) {
	fastRetries(t, 3)
	down := errors.New("connection refused")
	calls := 0

	err := waitReady("test", func(ctx context.Context) error {
		calls++
		return down
	})

	if !errors.Is(err, down) {
		t.Fatalf("expected the last ping error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 pings, got %d", calls)
	}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()
}

func TestNewRedis_BadURL(t *testing.T) {
	if _, err := NewRedis(config.RedisConfig{URL: "not a url"}); err == nil {
		t.Error("expected a parse error")
	}
}
