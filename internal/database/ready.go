package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Startup retry schedule. The backing services may still be booting when
// the app container launches.
var (
	readyAttempts   = 10
	readyBackoff    = time.Second
	readyMaxBackoff = 30 * time.Second
	readyTimeout    = 5 * time.Second
)

// pingFunc checks one dependency.
type pingFunc func(ctx context.Context) error

// waitReady pings until it succeeds, doubling the wait between attempts.
func waitReady(name string, ping pingFunc) error {
	backoff := readyBackoff
	var err error

	for attempt := 1; attempt <= readyAttempts; attempt++ {
		// Each ping gets its own deadline so a hung dial cannot stall startup.
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		err = ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		// No sleep after the last attempt.
		if attempt == readyAttempts {
			break
		}

		slog.Warn(name+" not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", readyAttempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, readyMaxBackoff)
	}

	return fmt.Errorf("pinging %s after %d attempts: %w", name, readyAttempts, err)
}
